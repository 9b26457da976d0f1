package testutil

import (
	"context"
	"sync"
	"time"

	"trektrace/internal/service/location"
)

// Clock is a settable time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// FlakyProvider wraps a PushProvider with injectable registration failures.
type FlakyProvider struct {
	*location.PushProvider

	mu       sync.Mutex
	startErr error
	stopErr  error
	starts   int
	stops    int
}

func NewFlakyProvider() *FlakyProvider {
	return &FlakyProvider{PushProvider: location.NewPushProvider(true, true)}
}

func (p *FlakyProvider) FailStart(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.startErr = err
}

// FailStop makes StopUpdates report err after it actually unregistered.
func (p *FlakyProvider) FailStop(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopErr = err
}

func (p *FlakyProvider) StartUpdates(ctx context.Context, opts location.Options, handler location.Handler) error {
	p.mu.Lock()
	p.starts++
	err := p.startErr
	p.mu.Unlock()
	if err != nil {
		return err
	}
	return p.PushProvider.StartUpdates(ctx, opts, handler)
}

func (p *FlakyProvider) StopUpdates(ctx context.Context) error {
	p.mu.Lock()
	p.stops++
	err := p.stopErr
	p.mu.Unlock()
	if stopErr := p.PushProvider.StopUpdates(ctx); stopErr != nil {
		return stopErr
	}
	return err
}

// Calls returns how many times StartUpdates and StopUpdates were invoked.
func (p *FlakyProvider) Calls() (starts, stops int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.starts, p.stops
}
