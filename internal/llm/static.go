package llm

import (
	"context"
	"errors"
	"sync"
)

var ErrScriptExhausted = errors.New("static provider: no scripted completions left")

// Static replays scripted completions in order and, when scripted, records
// every request. It backs offline runs and tests.
type Static struct {
	mu       sync.Mutex
	script   []Completion
	requests []Request
	fallback func(Request) *Completion
}

// NewStatic returns a provider that answers with script, one entry per call.
func NewStatic(script ...Completion) *Static {
	return &Static{script: script}
}

// NewEcho returns a provider that never runs out: it answers every request
// by quoting the latest user message. It keeps no request history, so it is
// safe behind a long-running server.
func NewEcho() *Static {
	return &Static{fallback: func(req Request) *Completion {
		return &Completion{Text: "You said: " + lastUserText(req.Messages), StopReason: "end_turn"}
	}}
}

func (s *Static) Name() string { return ProviderStatic }

func (s *Static) Complete(ctx context.Context, req Request) (*Completion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fallback != nil && len(s.script) == 0 {
		return s.fallback(req), nil
	}
	s.requests = append(s.requests, req)
	if len(s.script) == 0 {
		return nil, ErrScriptExhausted
	}
	next := s.script[0]
	s.script = s.script[1:]
	return &next, nil
}

// Requests returns a copy of every request received so far. Requests
// answered by the echo fallback are not kept.
func (s *Static) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.requests))
	copy(out, s.requests)
	return out
}
