package service

import (
	"context"
	"fmt"
	"sync"

	"analytics-chat-be/pkg/cosmos"
	"analytics-chat-be/pkg/events"
)

type fakeContainers map[string]cosmos.Container

func (f fakeContainers) Container(name string) (cosmos.Container, error) {
	c, ok := f[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", cosmos.ErrUnknownContainer, name)
	}
	return c, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) published() []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.Event(nil), p.events...)
}
