package cache

import (
	"time"

	"github.com/IvanBrykalov/memorycache/token"
)

// PostEvictionRegistration pairs a callback with its state argument.
type PostEvictionRegistration[K comparable, V any] struct {
	Callback PostEvictionCallback[K, V]
	State    any
}

// EntryOptions describes an entry's expiration, size and callbacks in one
// value, for SetWithOptions and Entry.Apply. Zero fields mean "not set".
type EntryOptions[K comparable, V any] struct {
	AbsoluteExpiration              time.Time
	AbsoluteExpirationRelativeToNow time.Duration
	SlidingExpiration               time.Duration
	Priority                        Priority
	// Size is optional; use Sized to take the address of a literal.
	Size                  *int64
	ExpirationTokens      []token.ChangeToken
	PostEvictionCallbacks []PostEvictionRegistration[K, V]
}

// Sized returns &n, for EntryOptions.Size.
func Sized(n int64) *int64 { return &n }

// Apply copies every set field of o onto e. Nothing is applied if o fails
// validation.
func (e *Entry[K, V]) Apply(o EntryOptions[K, V]) error {
	if o.AbsoluteExpirationRelativeToNow < 0 || o.SlidingExpiration < 0 {
		return ErrNonPositiveDuration
	}
	if o.Size != nil && *o.Size < 0 {
		return ErrNegativeSize
	}
	for _, t := range o.ExpirationTokens {
		if t == nil {
			return ErrNilToken
		}
	}
	for _, r := range o.PostEvictionCallbacks {
		if r.Callback == nil {
			return ErrNilCallback
		}
	}

	if !o.AbsoluteExpiration.IsZero() {
		e.SetAbsoluteExpiration(o.AbsoluteExpiration)
	}
	if o.AbsoluteExpirationRelativeToNow > 0 {
		_ = e.SetAbsoluteExpirationRelative(o.AbsoluteExpirationRelativeToNow)
	}
	if o.SlidingExpiration > 0 {
		_ = e.SetSlidingExpiration(o.SlidingExpiration)
	}
	if o.Priority != PriorityNormal {
		e.SetPriority(o.Priority)
	}
	if o.Size != nil {
		_ = e.SetSize(*o.Size)
	}
	for _, t := range o.ExpirationTokens {
		_ = e.AddExpirationToken(t)
	}
	for _, r := range o.PostEvictionCallbacks {
		_ = e.RegisterPostEvictionCallback(r.Callback, r.State)
	}
	return nil
}
