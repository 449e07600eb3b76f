// Package asr defines the speech-to-text collaborator seam. Transcription
// itself runs in a separate service; this package only carries the
// interface the HTTP surface delegates to.
package asr

import (
	"context"
	"errors"
	"sync"
)

// ErrUnavailable is returned when no transcription backend is configured.
var ErrUnavailable = errors.New("asr: no transcription backend configured")

// Transcriber turns a stored audio object into a transcript.
type Transcriber interface {
	Transcribe(ctx context.Context, objectKey string) (string, error)
}

// Unavailable is a Transcriber that always reports ErrUnavailable.
type Unavailable struct{}

// Transcribe implements Transcriber.
func (Unavailable) Transcribe(context.Context, string) (string, error) {
	return "", ErrUnavailable
}

// Mock is an in-memory Transcriber for tests.
type Mock struct {
	mu         sync.Mutex
	Transcript string
	Err        error
	Keys       []string
}

// Transcribe implements Transcriber, recording the requested key.
func (m *Mock) Transcribe(_ context.Context, objectKey string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Keys = append(m.Keys, objectKey)
	if m.Err != nil {
		return "", m.Err
	}
	return m.Transcript, nil
}
