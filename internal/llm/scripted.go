package llm

import (
	"context"
	"fmt"
	"sync"
)

// Step is one canned reply of a Scripted completer.
type Step struct {
	Answer string
	Err    error
}

// Scripted replays canned replies in order and records every request.
// It is used by tests and by offline dry runs.
type Scripted struct {
	mu       sync.Mutex
	steps    []Step
	fallback *Step
	requests []Request
}

// NewScripted returns a completer that replies with steps in order.
func NewScripted(steps ...Step) *Scripted {
	return &Scripted{steps: steps}
}

// Answers is shorthand for a script of successful replies.
func Answers(answers ...string) *Scripted {
	steps := make([]Step, len(answers))
	for i, a := range answers {
		steps[i] = Step{Answer: a}
	}
	return NewScripted(steps...)
}

// Always sets the reply used once the script runs out.
func (s *Scripted) Always(step Step) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fallback = &step
	return s
}

// Complete returns the next scripted step.
func (s *Scripted) Complete(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	req.System = append([]string(nil), req.System...)
	s.requests = append(s.requests, req)

	if len(s.steps) == 0 {
		if s.fallback != nil {
			return s.fallback.Answer, s.fallback.Err
		}
		return "", fmt.Errorf("scripted: no reply left for request %d", len(s.requests))
	}
	step := s.steps[0]
	s.steps = s.steps[1:]
	return step.Answer, step.Err
}

// Requests returns a copy of every request received so far.
func (s *Scripted) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// Remaining returns the number of unused scripted steps.
func (s *Scripted) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.steps)
}
