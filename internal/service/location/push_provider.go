package location

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"trektrace/internal/model"
)

var errUpdatesNotStarted = errors.New("location updates not started")

// PushProvider is a Provider fed by the device over the network: the device
// owns the GPS and pushes fixes, the server applies them as they arrive.
// Permission answers are whatever the device last reported.
type PushProvider struct {
	// mu is held for reading while a handler call is in flight, so StopUpdates
	// returns only after in-flight deliveries completed.
	mu      sync.RWMutex
	handler Handler
	opts    Options

	permMu     sync.RWMutex
	foreground bool
	background bool

	fixMu   sync.RWMutex
	lastFix *Fix
}

func NewPushProvider(foreground, background bool) *PushProvider {
	return &PushProvider{foreground: foreground, background: background}
}

// SetPermissions records the permission state reported by the device.
func (p *PushProvider) SetPermissions(foreground, background bool) {
	p.permMu.Lock()
	defer p.permMu.Unlock()
	p.foreground, p.background = foreground, background
}

func (p *PushProvider) RequestForegroundPermission(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p.permMu.RLock()
	defer p.permMu.RUnlock()
	return p.foreground, nil
}

func (p *PushProvider) RequestBackgroundPermission(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p.permMu.RLock()
	defer p.permMu.RUnlock()
	return p.background, nil
}

func (p *PushProvider) StartUpdates(ctx context.Context, opts Options, handler Handler) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if handler == nil {
		return errors.New("location handler is required")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.handler = handler
	p.opts = opts
	return nil
}

func (p *PushProvider) StopUpdates(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handler = nil
	return nil
}

// Options returns the delivery settings the device should apply, and whether
// updates are currently registered.
func (p *PushProvider) Options() (Options, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.opts, p.handler != nil
}

// Deliver hands a batch of fixes pushed by the device to the registered handler.
func (p *PushProvider) Deliver(fixes []Fix) error {
	if len(fixes) == 0 {
		return nil
	}

	p.fixMu.Lock()
	last := fixes[len(fixes)-1]
	p.lastFix = &last
	p.fixMu.Unlock()

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.handler == nil {
		return fmt.Errorf("deliver %d fixes: %w: %w", len(fixes), model.ErrNoActiveSession, errUpdatesNotStarted)
	}
	p.handler(fixes, nil)
	return nil
}

// Fail reports a delivery fault (provider error, revoked permission).
func (p *PushProvider) Fail(err error) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.handler == nil {
		return fmt.Errorf("report delivery fault: %w: %w", model.ErrNoActiveSession, errUpdatesNotStarted)
	}
	p.handler(nil, err)
	return nil
}

func (p *PushProvider) CurrentFix(ctx context.Context) (Fix, error) {
	if err := ctx.Err(); err != nil {
		return Fix{}, err
	}
	p.fixMu.RLock()
	defer p.fixMu.RUnlock()
	if p.lastFix == nil {
		return Fix{}, fmt.Errorf("current location: %w", model.ErrNotFound)
	}
	return *p.lastFix, nil
}
