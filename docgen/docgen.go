// Package docgen implements the document pipeline: drafting a structured
// clinical note from a transcript and refining its phrasing, both against
// one fixed schema.
package docgen

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/clinicoai/clinico-go/graph"
	"github.com/clinicoai/clinico-go/model"
	"github.com/clinicoai/clinico-go/schema"
)

// Node names in the pipeline graph.
const (
	nodeGenerate = "document_generator"
	nodeRefine   = "document_quality_checker"
)

// Request carries everything one document generation needs.
type Request struct {
	Transcript        string
	DocumentType      string
	DoctorSuggestions string
	Schema            *schema.Descriptor
}

// State is the pipeline's shared workflow state.
type State struct {
	Request  Request
	Document *schema.Document
}

// Reduce merges a node delta: a non-nil Document replaces the draft, the
// request is carried from the initial state.
func Reduce(prev, delta State) State {
	next := prev
	if delta.Document != nil {
		next.Document = delta.Document
	}
	return next
}

// Pipeline drives generate → refine. Safe for concurrent use; each
// Generate call owns its own state.
type Pipeline struct {
	model   model.StructuredModel
	graph   *graph.CompiledGraph[State]
	runOpts []graph.RunOption
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithRunOptions sets graph run options applied to every Generate call.
func WithRunOptions(opts ...graph.RunOption) Option {
	return func(p *Pipeline) { p.runOpts = append(p.runOpts, opts...) }
}

// New builds and compiles the document pipeline.
func New(m model.StructuredModel, opts ...Option) (*Pipeline, error) {
	p := &Pipeline{model: m}
	for _, opt := range opts {
		opt(p)
	}
	p.runOpts = append(p.runOpts, graph.WithGraphName("document_pipeline"))

	g := graph.New(Reduce).
		AddNode(nodeGenerate, p.generateNode).
		AddNode(nodeRefine, p.refineNode).
		SetEntry(nodeGenerate).
		AddRouter(nodeGenerate, refineRouter).
		AddEdge(nodeRefine, graph.END)

	compiled, err := g.Compile()
	if err != nil {
		return nil, fmt.Errorf("docgen: graph compile failed: %w", err)
	}
	p.graph = compiled
	return p, nil
}

// Generate runs the pipeline and returns the final Document. A model or
// parse failure yields a degraded Document, not an error; the error return
// covers engine-level failures only.
func (p *Pipeline) Generate(ctx context.Context, req Request) (*schema.Document, error) {
	if req.Schema == nil {
		return nil, fmt.Errorf("docgen: request has no schema")
	}

	final, err := p.graph.Run(ctx, uuid.NewString(), State{Request: req}, p.runOpts...)
	if err != nil {
		return nil, err
	}
	if final.Document == nil {
		return nil, fmt.Errorf("docgen: pipeline produced no document")
	}
	return final.Document, nil
}

// generateNode drafts the document. Failures degrade instead of raising:
// every schema field is emitted empty alongside the error and the raw
// model output.
func (p *Pipeline) generateNode(ctx context.Context, state State) (State, error) {
	req := state.Request
	prompt := buildGeneratePrompt(req)

	fields, err := p.model.GenerateStructured(ctx, prompt, req.Schema)
	if err != nil {
		doc := schema.Degraded(req.Schema, nil, err.Error(), "")
		return State{Document: &doc}, nil
	}
	doc := schema.NewDocument(fields)
	return State{Document: &doc}, nil
}

// refineRouter short-circuits a degraded draft straight to the end;
// refining garbage is pointless.
func refineRouter(state State) string {
	if state.Document == nil || state.Document.IsDegraded() {
		return graph.END
	}
	return nodeRefine
}

// refineNode rephrases the draft in clinical register against the same
// schema. On failure the draft survives, annotated with the refine error.
func (p *Pipeline) refineNode(ctx context.Context, state State) (State, error) {
	req := state.Request
	prompt := buildRefinePrompt(state.Document)

	fields, err := p.model.GenerateStructured(ctx, prompt, req.Schema)
	if err != nil {
		degraded := schema.Degraded(req.Schema, state.Document.Fields, "refine failed: "+err.Error(), "")
		return State{Document: &degraded}, nil
	}
	doc := schema.NewDocument(fields)
	return State{Document: &doc}, nil
}

func buildGeneratePrompt(req Request) string {
	var b strings.Builder

	if s := strings.TrimSpace(req.DoctorSuggestions); s != "" {
		fmt.Fprintf(&b, "DOCTOR'S SUGGESTIONS (MANDATORY):\n%s\n\n", s)
		b.WriteString("RULE: You MUST strictly follow and apply these suggestions. ")
		b.WriteString("They override any conflicting information in the transcript. ")
		b.WriteString("Do not ignore, alter, or omit them.\n\n")
	} else {
		b.WriteString("RULE: No doctor suggestions provided. Only rely on the transcript ")
		b.WriteString("and required sections. Do not add or invent information.\n\n")
	}

	fields := req.Schema.Fields()
	fmt.Fprintf(&b, "You are a professional medical scribe. Convert the following doctor-patient conversation into a %s note with EXACTLY these %d sections:\n\n",
		req.DocumentType, len(fields))
	for _, f := range fields {
		fmt.Fprintf(&b, "%s: %s\n", strings.ToUpper(f.Name), f.Description)
	}

	fmt.Fprintf(&b, "\nCONVERSATION:\n%s\n\n", req.Transcript)
	b.WriteString("Ensure the note follows all rules and doctor's suggestions.")
	return b.String()
}

func buildRefinePrompt(doc *schema.Document) string {
	var b strings.Builder
	b.WriteString(`You are a professional medical documentation editor.

Review and refine the following medical note for clarity, professionalism, and accuracy.
Rephrase sentences in the style of clinical documentation.

Rules:
- Keep all medical facts intact.
- Use formal, clinical, and grammatically correct phrasing.
- Maintain brevity and precision.
- Avoid redundancy.
- DO NOT invent, omit, or modify medical meaning.

Here is the document to refine:
`)
	for _, name := range doc.FieldNames() {
		fmt.Fprintf(&b, "%s: %s\n", name, doc.Fields[name])
	}
	b.WriteString("\nOutput must strictly follow the structure of the provided sections.")
	return b.String()
}
