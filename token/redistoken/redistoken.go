// Package redistoken provides change tokens driven by Redis pub/sub, so that
// one process can invalidate entries cached by many.
//
// A Hub holds a single subscription to one channel. Each published message
// is a tag; every token handed out for that tag fires when it arrives.
//
// The hub tracks a tag from the first Token call until the tag is
// invalidated or every callback registered on its tokens has been stopped.
// Cache entries stop their registrations when evicted, so the hub holds at
// most one tag per live entry plus tags fetched but never registered.
package redistoken

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/IvanBrykalov/memorycache/token"
)

// ErrClosed is returned by Invalidate after Close.
var ErrClosed = errors.New("redistoken: hub closed")

// Hub multiplexes tag tokens over one pub/sub channel.
type Hub struct {
	client  redis.UniversalClient
	channel string
	ps      *redis.PubSub

	mu     sync.Mutex
	tags   map[string][]*tagState
	closed bool

	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// NewHub subscribes to channel and waits for the subscription to be
// confirmed, so that invalidations published after NewHub returns are seen.
func NewHub(ctx context.Context, client redis.UniversalClient, channel string) (*Hub, error) {
	if client == nil {
		return nil, errors.New("redistoken: nil client")
	}
	ps := client.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redistoken: subscribe %q: %w", channel, err)
	}
	h := &Hub{
		client:  client,
		channel: channel,
		ps:      ps,
		tags:    make(map[string][]*tagState),
		done:    make(chan struct{}),
	}
	go h.loop(ps.Channel())
	return h, nil
}

func (h *Hub) loop(ch <-chan *redis.Message) {
	defer close(h.done)
	for msg := range ch {
		h.fire(msg.Payload)
	}
}

// tagState is one generation of a tag. Fields other than tag and src are
// guarded by Hub.mu.
type tagState struct {
	tag    string
	src    *token.Source
	refs   int // live callback registrations
	listed bool
}

// fire signals every tracked generation of tag. Signalling under mu keeps
// registration and firing ordered; token callbacks run on their own
// goroutines.
func (h *Hub) fire(tag string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, st := range h.tags[tag] {
		st.listed = false
		st.src.Signal()
	}
	delete(h.tags, tag)
}

// Token returns the token for tag. Tokens for the same tag share state until
// the tag is invalidated; after that a fresh token is handed out.
// Tokens obtained after Close never fire.
func (h *Hub) Token(tag string) token.ChangeToken {
	h.mu.Lock()
	defer h.mu.Unlock()
	if list := h.tags[tag]; len(list) > 0 {
		return tagToken{h: h, st: list[0]}
	}
	st := &tagState{tag: tag, src: token.NewSource()}
	if !h.closed {
		h.listLocked(st)
	}
	return tagToken{h: h, st: st}
}

func (h *Hub) listLocked(st *tagState) {
	st.listed = true
	h.tags[st.tag] = append(h.tags[st.tag], st)
}

func (h *Hub) unlistLocked(st *tagState) {
	st.listed = false
	list := slices.DeleteFunc(h.tags[st.tag], func(s *tagState) bool { return s == st })
	if len(list) == 0 {
		delete(h.tags, st.tag)
		return
	}
	h.tags[st.tag] = list
}

// register counts a callback on st, re-tracking a generation that was
// dropped after its last registration stopped. It reports whether the
// registration was counted.
func (h *Hub) register(st *tagState) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed || st.src.Signalled() {
		return false
	}
	if !st.listed {
		h.listLocked(st)
	}
	st.refs++
	return true
}

func (h *Hub) release(st *tagState) {
	h.mu.Lock()
	defer h.mu.Unlock()
	st.refs--
	if st.refs == 0 && st.listed {
		h.unlistLocked(st)
	}
}

// tracked returns the number of tags the hub currently holds.
func (h *Hub) tracked() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.tags)
}

type tagToken struct {
	h  *Hub
	st *tagState
}

func (t tagToken) HasChanged() bool { return t.st.src.Signalled() }

func (t tagToken) RegisterChangeCallback(fn func()) (func(), bool) {
	counted := t.h.register(t.st)
	stop, ok := t.st.src.Token().RegisterChangeCallback(fn)
	var once sync.Once
	return func() {
		once.Do(func() {
			stop()
			if counted {
				t.h.release(t.st)
			}
		})
	}, ok
}

// Invalidate publishes tag on the hub's channel. Every subscribed hub,
// this one included, fires its tokens for tag.
func (h *Hub) Invalidate(ctx context.Context, tag string) error {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		return ErrClosed
	}
	return Publish(ctx, h.client, h.channel, tag)
}

// Publish sends an invalidation for tag without needing a Hub.
func Publish(ctx context.Context, client redis.UniversalClient, channel, tag string) error {
	if err := client.Publish(ctx, channel, tag).Err(); err != nil {
		return fmt.Errorf("redistoken: publish %q: %w", channel, err)
	}
	return nil
}

// Close unsubscribes. Outstanding tokens stay unchanged.
func (h *Hub) Close() error {
	h.closeOnce.Do(func() {
		h.mu.Lock()
		h.closed = true
		for _, list := range h.tags {
			for _, st := range list {
				st.listed = false
			}
		}
		h.tags = make(map[string][]*tagState)
		h.mu.Unlock()
		h.closeErr = h.ps.Close()
		<-h.done
	})
	return h.closeErr
}
