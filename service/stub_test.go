package service

import (
	"context"
	"sync"

	"google.golang.org/genai"
)

type jsonCall struct {
	parts          []*genai.Part
	schema         *genai.Schema
	thinkingBudget int
}

type chatCall struct {
	system string
	turns  []Turn
}

// stubModel is an in-memory ModelClient. When gate is set, calls block
// until it is closed or the context ends.
type stubModel struct {
	mu       sync.Mutex
	jsonText string
	jsonErr  error
	chatText string
	chatErr  error
	gate     chan struct{}

	jsonCalls []jsonCall
	chatCalls []chatCall
}

func (s *stubModel) wait(ctx context.Context) error {
	s.mu.Lock()
	gate := s.gate
	s.mu.Unlock()
	if gate == nil {
		return nil
	}
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *stubModel) GenerateJSON(ctx context.Context, parts []*genai.Part, schema *genai.Schema, thinkingBudget int) (string, error) {
	s.mu.Lock()
	s.jsonCalls = append(s.jsonCalls, jsonCall{parts: parts, schema: schema, thinkingBudget: thinkingBudget})
	s.mu.Unlock()

	if err := s.wait(ctx); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jsonText, s.jsonErr
}

func (s *stubModel) Chat(ctx context.Context, system string, turns []Turn) (string, error) {
	s.mu.Lock()
	s.chatCalls = append(s.chatCalls, chatCall{system: system, turns: turns})
	s.mu.Unlock()

	if err := s.wait(ctx); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chatText, s.chatErr
}

func (s *stubModel) jsonCallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jsonCalls)
}

func (s *stubModel) chatCallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chatCalls)
}

const leaseClause = "This lease auto-renews for 12 months unless cancelled 90 days prior."

const leaseAnalysisJSON = `{
  "title": "Lease Agreement",
  "summary": "A residential lease with automatic renewal.",
  "simpleExplanation": "You rent a home and it keeps going unless you say stop early.",
  "parties": ["Landlord", "Tenant"],
  "risks": [
    {
      "clause": "This lease auto-renews for 12 months unless cancelled 90 days prior.",
      "riskLevel": "HIGH",
      "description": "Automatic renewal with a long notice period.",
      "simplifiedWarning": "If you forget to cancel 3 months early, you are stuck for another year."
    }
  ],
  "deadlines": [{"date": "90 days before term end", "description": "Last day to cancel"}],
  "keyObligations": ["Cancel 90 days before the end if you want to leave"]
}`
