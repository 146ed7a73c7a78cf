package llm

import (
	"context"
	"fmt"
	"sync"
)

const providerMock = "mock"

// Func adapts a function to LanguageModel.
type Func func(ctx context.Context, req Request) (Response, error)

func (f Func) Complete(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}

// Scripted replays canned replies per task in order and records every request. Once a
// task's script is exhausted its last reply repeats.
type Scripted struct {
	mu       sync.Mutex
	replies  map[Task][]Reply
	calls    map[Task]int
	requests []Request
}

type Reply struct {
	Text string
	Err  error
}

func NewScripted() *Scripted {
	return &Scripted{replies: map[Task][]Reply{}, calls: map[Task]int{}}
}

// On appends replies for task and returns the receiver for chaining.
func (s *Scripted) On(task Task, replies ...Reply) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies[task] = append(s.replies[task], replies...)
	return s
}

func (s *Scripted) Complete(ctx context.Context, req Request) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	script := s.replies[req.Task]
	if len(script) == 0 {
		return Response{}, fmt.Errorf("no scripted reply for task %s", req.Task)
	}
	idx := s.calls[req.Task]
	s.calls[req.Task]++
	if idx >= len(script) {
		idx = len(script) - 1
	}
	reply := script[idx]
	if reply.Err != nil {
		return Response{}, reply.Err
	}
	return Response{Text: reply.Text, Provider: providerMock, Model: providerMock}, nil
}

func (s *Scripted) Calls(task Task) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[task]
}

func (s *Scripted) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}
