// Package token provides change tokens: signals that expire cache entries
// when something outside the cache changes.
//
// A token is either active (it can call back when it changes) or passive
// (it can only be polled through HasChanged). The cache registers a callback
// with active tokens and removes the entry as soon as it fires; passive
// tokens are checked whenever the entry is touched or scanned.
package token

import (
	"context"
	"sync"
)

// ChangeToken is a one-way signal: once HasChanged reports true it stays true.
type ChangeToken interface {
	HasChanged() bool
	// RegisterChangeCallback arranges for fn to run once after the token
	// changes (immediately if it already has). ok is false for passive
	// tokens, in which case nothing was registered. stop releases the
	// registration; calling it after fn ran is harmless.
	RegisterChangeCallback(fn func()) (stop func(), ok bool)
}

// ---- context-backed ----

type ctxToken struct{ ctx context.Context }

// FromContext returns an active token that changes when ctx is done.
func FromContext(ctx context.Context) ChangeToken { return ctxToken{ctx: ctx} }

func (t ctxToken) HasChanged() bool { return t.ctx.Err() != nil }

func (t ctxToken) RegisterChangeCallback(fn func()) (func(), bool) {
	stop := context.AfterFunc(t.ctx, fn)
	return func() { stop() }, true
}

// ---- manual source ----

// Source is a manually triggered token, the cache-side analogue of a
// cancellation source. The zero value is not usable; call NewSource.
type Source struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// NewSource returns an unsignalled source.
func NewSource() *Source {
	ctx, cancel := context.WithCancel(context.Background())
	return &Source{ctx: ctx, cancel: cancel}
}

// Token returns the active token controlled by s.
func (s *Source) Token() ChangeToken { return ctxToken{ctx: s.ctx} }

// Signal marks the token as changed and fires registered callbacks.
// Repeated calls are no-ops.
func (s *Source) Signal() { s.cancel() }

// Signalled reports whether Signal has been called.
func (s *Source) Signalled() bool { return s.ctx.Err() != nil }

// ---- passive poll ----

type pollToken struct {
	mu      sync.Mutex
	changed bool
	check   func() bool
}

// Poll returns a passive token whose HasChanged delegates to check until it
// first reports true. check must be safe for concurrent use.
func Poll(check func() bool) ChangeToken { return &pollToken{check: check} }

func (t *pollToken) HasChanged() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.changed && t.check() {
		t.changed = true
	}
	return t.changed
}

func (*pollToken) RegisterChangeCallback(func()) (func(), bool) { return nil, false }

// ---- composite ----

type composite struct{ tokens []ChangeToken }

// Composite returns a token that has changed once any of tokens has.
// It is active if at least one member is active.
func Composite(tokens ...ChangeToken) ChangeToken {
	return composite{tokens: tokens}
}

func (c composite) HasChanged() bool {
	for _, t := range c.tokens {
		if t.HasChanged() {
			return true
		}
	}
	return false
}

func (c composite) RegisterChangeCallback(fn func()) (func(), bool) {
	var once sync.Once
	fire := func() { once.Do(fn) }

	var stops []func()
	for _, t := range c.tokens {
		if stop, ok := t.RegisterChangeCallback(fire); ok {
			stops = append(stops, stop)
		}
	}
	if len(stops) == 0 {
		return nil, false
	}
	return func() {
		for _, stop := range stops {
			stop()
		}
	}, true
}
