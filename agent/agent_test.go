package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/clinicoai/clinico-go/graph"
	"github.com/clinicoai/clinico-go/model"
	"github.com/clinicoai/clinico-go/retrieval"
)

func newTestAgent(t *testing.T, chat *model.MockChatModel, retriever retrieval.Retriever) *Agent {
	t.Helper()
	a, err := New(chat, retriever)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func TestAnswer_GroundedFlow(t *testing.T) {
	chat := &model.MockChatModel{Responses: []model.ChatOut{
		{Text: "YES"},
		{ToolCalls: []model.ToolCall{{
			ID:   "call_1",
			Name: ContextToolName,
			Args: map[string]any{"query": "smoking history"},
		}}},
		{Text: "The record indicates the patient reports no tobacco use."},
	}}
	retriever := &retrieval.Mock{Snippets: []string{"Patient reports no tobacco use."}}
	a := newTestAgent(t, chat, retriever)

	answer, err := a.Answer(context.Background(), "session-1", "Does the patient smoke?")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if answer != "The record indicates the patient reports no tobacco use." {
		t.Errorf("unexpected answer %q", answer)
	}

	if retriever.CallCount() != 1 {
		t.Fatalf("expected 1 retrieval, got %d", retriever.CallCount())
	}
	call := retriever.Calls[0]
	if call.SessionID != "session-1" {
		t.Errorf("expected session-1, got %q", call.SessionID)
	}
	if call.Query != "smoking history" {
		t.Errorf("expected query from the tool call, got %q", call.Query)
	}

	if chat.CallCount() != 3 {
		t.Fatalf("expected 3 completions (validate, chat, answer), got %d", chat.CallCount())
	}
}

func TestAnswer_SentinelNeverReachesChatCompletion(t *testing.T) {
	chat := &model.MockChatModel{Responses: []model.ChatOut{
		{Text: "YES"},
		{Text: "Direct answer."},
	}}
	a := newTestAgent(t, chat, &retrieval.Mock{})

	if _, err := a.Answer(context.Background(), "s", "Patient complaint?"); err != nil {
		t.Fatalf("Answer: %v", err)
	}

	chatCall := chat.Calls[1]
	if len(chatCall.Messages) != 2 {
		t.Fatalf("expected system + user only, got %d messages", len(chatCall.Messages))
	}
	if chatCall.Messages[0].Role != model.RoleSystem {
		t.Errorf("expected leading system message, got %q", chatCall.Messages[0].Role)
	}
	if chatCall.Messages[1].Content != "Patient complaint?" {
		t.Errorf("expected the user query, got %q", chatCall.Messages[1].Content)
	}
	for _, msg := range chatCall.Messages {
		if strings.TrimSpace(msg.Content) == "YES" {
			t.Error("validator sentinel leaked into the chat completion")
		}
	}
	if len(chatCall.Tools) != 1 || chatCall.Tools[0].Name != ContextToolName {
		t.Errorf("expected the retrieval tool to be offered, got %v", chatCall.Tools)
	}
}

func TestAnswer_RejectedQuery(t *testing.T) {
	chat := &model.MockChatModel{Responses: []model.ChatOut{{Text: "NO"}}}
	retriever := &retrieval.Mock{}
	a := newTestAgent(t, chat, retriever)

	answer, err := a.Answer(context.Background(), "s", "Tell me about the football score")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if answer != RefusalAnswer {
		t.Errorf("expected the fixed refusal, got %q", answer)
	}
	if chat.CallCount() != 1 {
		t.Errorf("expected only the validator to run, got %d completions", chat.CallCount())
	}
	if retriever.CallCount() != 0 {
		t.Errorf("expected no retrieval on rejection, got %d", retriever.CallCount())
	}
}

func TestAnswer_SentinelNormalization(t *testing.T) {
	for _, sentinel := range []string{"NO", "no", "  No \n"} {
		chat := &model.MockChatModel{Responses: []model.ChatOut{{Text: sentinel}}}
		a := newTestAgent(t, chat, &retrieval.Mock{})

		answer, err := a.Answer(context.Background(), "s", "query")
		if err != nil {
			t.Fatalf("sentinel %q: %v", sentinel, err)
		}
		if answer != RefusalAnswer {
			t.Errorf("sentinel %q: expected refusal, got %q", sentinel, answer)
		}
	}
}

func TestAnswer_PlainAnswerWithoutTools(t *testing.T) {
	chat := &model.MockChatModel{Responses: []model.ChatOut{
		{Text: "YES"},
		{Text: "No retrieval needed."},
	}}
	retriever := &retrieval.Mock{}
	a := newTestAgent(t, chat, retriever)

	answer, err := a.Answer(context.Background(), "s", "General question")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if answer != "No retrieval needed." {
		t.Errorf("unexpected answer %q", answer)
	}
	if retriever.CallCount() != 0 {
		t.Errorf("expected no retrieval, got %d", retriever.CallCount())
	}
}

func TestAnswer_ToolCallIDRoundTrip(t *testing.T) {
	chat := &model.MockChatModel{Responses: []model.ChatOut{
		{Text: "YES"},
		{ToolCalls: []model.ToolCall{{
			ID:   "call_abc",
			Name: ContextToolName,
			Args: map[string]any{"query": "q"},
		}}},
		{Text: "grounded"},
	}}
	a := newTestAgent(t, chat, &retrieval.Mock{Snippets: []string{"ctx"}})

	if _, err := a.Answer(context.Background(), "s", "q"); err != nil {
		t.Fatalf("Answer: %v", err)
	}

	answerCall := chat.Calls[2]
	var toolMsg *model.Message
	for i := range answerCall.Messages {
		if answerCall.Messages[i].Role == model.RoleTool {
			toolMsg = &answerCall.Messages[i]
		}
	}
	if toolMsg == nil {
		t.Fatal("expected a tool-result message in the answering history")
	}
	if toolMsg.ToolCallID != "call_abc" {
		t.Errorf("expected tool_call_id call_abc, got %q", toolMsg.ToolCallID)
	}
	if toolMsg.Name != ContextToolName {
		t.Errorf("expected tool name %q, got %q", ContextToolName, toolMsg.Name)
	}

	grounding := answerCall.Messages[len(answerCall.Messages)-1]
	if grounding.Role != model.RoleSystem || !strings.Contains(grounding.Content, "ctx") {
		t.Errorf("expected trailing grounding message with context, got %+v", grounding)
	}
}

func TestAnswer_MissingToolCallIDFailsLoudly(t *testing.T) {
	chat := &model.MockChatModel{Responses: []model.ChatOut{
		{Text: "YES"},
		{ToolCalls: []model.ToolCall{{Name: ContextToolName, Args: map[string]any{"query": "q"}}}},
	}}
	a := newTestAgent(t, chat, &retrieval.Mock{Snippets: []string{"ctx"}})

	_, err := a.Answer(context.Background(), "s", "q")
	if err == nil {
		t.Fatal("expected an error for a tool call without an id")
	}
	var execErr *graph.ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("expected *graph.ExecutionError, got %T", err)
	}
	if execErr.NodeID != nodeTools {
		t.Errorf("expected failure at %q, got %q", nodeTools, execErr.NodeID)
	}
}

func TestAnswer_CompletionFailurePropagates(t *testing.T) {
	boom := errors.New("provider down")
	chat := &model.MockChatModel{Err: boom}
	a := newTestAgent(t, chat, &retrieval.Mock{})

	_, err := a.Answer(context.Background(), "s", "q")
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped provider error, got %v", err)
	}
}

func TestAnswer_RetrievalFailurePropagates(t *testing.T) {
	chat := &model.MockChatModel{Responses: []model.ChatOut{
		{Text: "YES"},
		{ToolCalls: []model.ToolCall{{ID: "c1", Name: ContextToolName, Args: map[string]any{"query": "q"}}}},
	}}
	boom := errors.New("rag unreachable")
	a := newTestAgent(t, chat, &retrieval.Mock{Err: boom})

	_, err := a.Answer(context.Background(), "s", "q")
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped retrieval error, got %v", err)
	}
}

func TestToolRouter_Precedence(t *testing.T) {
	pending := model.Message{
		Role:      model.RoleAssistant,
		ToolCalls: []model.ToolCall{{ID: "c1", Name: ContextToolName}},
	}

	t.Run("populated context wins over pending call", func(t *testing.T) {
		state := State{Messages: []model.Message{pending}, Context: []string{"cached"}}
		if got := toolRouter(state); got != nodeAnswer {
			t.Errorf("expected %q, got %q", nodeAnswer, got)
		}
	})

	t.Run("pending call routes to tools", func(t *testing.T) {
		state := State{Messages: []model.Message{pending}}
		if got := toolRouter(state); got != nodeTools {
			t.Errorf("expected %q, got %q", nodeTools, got)
		}
	})

	t.Run("nothing pending ends", func(t *testing.T) {
		state := State{Messages: []model.Message{{Role: model.RoleAssistant, Content: "done"}}}
		if got := toolRouter(state); got != graph.END {
			t.Errorf("expected END, got %q", got)
		}
	})
}

func TestToolNode_IdempotenceGuard(t *testing.T) {
	retriever := &retrieval.Mock{Snippets: []string{"fresh"}}
	a := newTestAgent(t, &model.MockChatModel{}, retriever)

	state := State{
		Context: []string{"cached"},
		Messages: []model.Message{{
			Role:      model.RoleAssistant,
			ToolCalls: []model.ToolCall{{ID: "c1", Name: ContextToolName, Args: map[string]any{"query": "q"}}},
		}},
	}

	delta, err := a.toolNode(context.Background(), state)
	if err != nil {
		t.Fatalf("toolNode: %v", err)
	}
	if len(delta.Messages) != 0 || len(delta.Context) != 0 {
		t.Errorf("expected empty delta, got %+v", delta)
	}
	if retriever.CallCount() != 0 {
		t.Errorf("expected no retrieval behind the guard, got %d", retriever.CallCount())
	}
}

func TestReduce(t *testing.T) {
	t.Run("appends messages", func(t *testing.T) {
		prev := State{Messages: []model.Message{{Role: model.RoleUser, Content: "q"}}}
		next := Reduce(prev, State{Messages: []model.Message{{Role: model.RoleAssistant, Content: "a"}}})
		if len(next.Messages) != 2 {
			t.Fatalf("expected 2 messages, got %d", len(next.Messages))
		}
	})

	t.Run("truncation drops the sentinel before appending", func(t *testing.T) {
		prev := State{Messages: []model.Message{
			{Role: model.RoleUser, Content: "q"},
			{Role: model.RoleAssistant, Content: "YES"},
		}}
		next := Reduce(prev, State{
			TruncateLast: true,
			Messages:     []model.Message{{Role: model.RoleAssistant, Content: "a"}},
		})
		if len(next.Messages) != 2 {
			t.Fatalf("expected 2 messages, got %d", len(next.Messages))
		}
		if next.Messages[1].Content != "a" {
			t.Errorf("expected the new assistant message last, got %q", next.Messages[1].Content)
		}
		if next.TruncateLast {
			t.Error("truncation flag must not persist in merged state")
		}
	})

	t.Run("context is set once", func(t *testing.T) {
		prev := State{Context: []string{"first"}}
		next := Reduce(prev, State{Context: []string{"second"}})
		if len(next.Context) != 1 || next.Context[0] != "first" {
			t.Errorf("expected context to stay authoritative, got %v", next.Context)
		}
	})

	t.Run("session id carried", func(t *testing.T) {
		next := Reduce(State{SessionID: "s-1"}, State{})
		if next.SessionID != "s-1" {
			t.Errorf("expected session id to survive, got %q", next.SessionID)
		}
	})
}
