// Package testutil provides a scripted llm.Generator for tests.
package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/c360studio/civicdraft/llm"
)

// Reply is one scripted answer: text, or an error when Err is set.
type Reply struct {
	Text string
	Err  error
}

// MockGenerator answers Generate calls from a script and records every request.
//
// Replies are consumed in order. A Match function, when set, is consulted
// first and lets a test answer by prompt content instead of call order:
//
//	gen := &testutil.MockGenerator{
//	    Match: func(req llm.GenerateRequest) (string, bool) {
//	        if strings.Contains(req.Prompt, "Reply with either NEEDS_ZONING") {
//	            return "NEEDS_ZONING", true
//	        }
//	        return "", false
//	    },
//	    Default: "ok",
//	}
type MockGenerator struct {
	mu       sync.Mutex
	Replies  []Reply
	Match    func(req llm.GenerateRequest) (string, bool)
	Default  string
	Err      error // returned for every call when set
	requests []llm.GenerateRequest
	next     int
}

// Generate implements llm.Generator.
func (m *MockGenerator) Generate(ctx context.Context, req llm.GenerateRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if m.Err != nil {
		return "", m.Err
	}
	if m.Match != nil {
		if text, ok := m.Match(req); ok {
			return text, nil
		}
	}
	if m.next < len(m.Replies) {
		r := m.Replies[m.next]
		m.next++
		return r.Text, r.Err
	}
	return m.Default, nil
}

// Texts builds a script of plain text replies.
func Texts(texts ...string) []Reply {
	replies := make([]Reply, len(texts))
	for i, t := range texts {
		replies[i] = Reply{Text: t}
	}
	return replies
}

// CallCount returns the number of Generate calls so far.
func (m *MockGenerator) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Requests returns a copy of every request received.
func (m *MockGenerator) Requests() []llm.GenerateRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]llm.GenerateRequest(nil), m.requests...)
}

// CallsContaining counts requests whose prompt contains substr.
func (m *MockGenerator) CallsContaining(substr string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.requests {
		if strings.Contains(r.Prompt, substr) {
			n++
		}
	}
	return n
}

// Reset clears recorded requests and rewinds the script.
func (m *MockGenerator) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
	m.next = 0
}

// String summarizes the mock for test failure messages.
func (m *MockGenerator) String() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fmt.Sprintf("MockGenerator{calls: %d, scripted: %d, consumed: %d}", len(m.requests), len(m.Replies), m.next)
}
