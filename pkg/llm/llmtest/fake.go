// Package llmtest provides a scripted llm.LLMProvider for tests.
package llmtest

import (
	"context"
	"strings"
	"sync"

	"analytics-chat-be/pkg/llm"
)

// Reply is returned when a rule matches.
type Reply struct {
	Text string
	Err  error
}

type rule struct {
	contains string
	reply    Reply
}

// Call is one recorded invocation.
type Call struct {
	Messages []llm.Message
	Options  llm.Options
}

// FakeProvider answers by matching a substring of the system prompt.
// Rules are checked in registration order, first match wins.
type FakeProvider struct {
	mu       sync.Mutex
	rules    []rule
	fallback Reply
	calls    []Call
}

var _ llm.LLMProvider = &FakeProvider{}

func NewFakeProvider() *FakeProvider {
	return &FakeProvider{}
}

// On registers a reply for calls whose system prompt contains marker.
func (f *FakeProvider) On(marker string, text string) *FakeProvider {
	return f.OnReply(marker, Reply{Text: text})
}

func (f *FakeProvider) OnReply(marker string, r Reply) *FakeProvider {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = append(f.rules, rule{contains: marker, reply: r})
	return f
}

// Default sets the reply used when nothing matches.
func (f *FakeProvider) Default(r Reply) *FakeProvider {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fallback = r
	return f
}

func (f *FakeProvider) Chat(_ context.Context, history []llm.Message, options ...llm.Option) (string, error) {
	opts := llm.Apply(llm.Options{}, options...)

	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, Call{Messages: append([]llm.Message(nil), history...), Options: *opts})

	for _, r := range f.rules {
		if strings.Contains(opts.SystemPrompt, r.contains) {
			return r.reply.Text, r.reply.Err
		}
	}
	return f.fallback.Text, f.fallback.Err
}

func (f *FakeProvider) Generate(ctx context.Context, prompt string, options ...llm.Option) (string, error) {
	return f.Chat(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}}, options...)
}

// Calls returns a copy of every recorded call.
func (f *FakeProvider) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}
