package cache

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t atomic.Int64 }

func newFakeClock() *fakeClock {
	c := &fakeClock{}
	c.t.Store(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).UnixNano())
	return c
}

func (f *fakeClock) NowUnixNano() int64  { return f.t.Load() }
func (f *fakeClock) add(d time.Duration) { f.t.Add(int64(d)) }
func (f *fakeClock) now() time.Time      { return time.Unix(0, f.t.Load()) }

func newTestCache[K comparable, V any](t testing.TB, opt Options[K, V]) Cache[K, V] {
	t.Helper()
	c, err := New(opt)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

type eviction[K comparable, V any] struct {
	key    K
	value  V
	reason EvictionReason
	state  any
}

// recorder returns a callback that forwards every eviction to a channel.
func recorder[K comparable, V any]() (PostEvictionCallback[K, V], <-chan eviction[K, V]) {
	ch := make(chan eviction[K, V], 256)
	return func(k K, v V, r EvictionReason, st any) {
		ch <- eviction[K, V]{key: k, value: v, reason: r, state: st}
	}, ch
}

func waitEviction[K comparable, V any](t *testing.T, ch <-chan eviction[K, V]) eviction[K, V] {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for post-eviction callback")
	}
	panic("unreachable")
}

func noEviction[K comparable, V any](t *testing.T, ch <-chan eviction[K, V]) {
	t.Helper()
	select {
	case ev := <-ch:
		t.Fatalf("unexpected eviction of %v (%v)", ev.key, ev.reason)
	case <-time.After(50 * time.Millisecond):
	}
}

// withCallback is EntryOptions carrying a single post-eviction callback.
func withCallback[K comparable, V any](cb PostEvictionCallback[K, V]) EntryOptions[K, V] {
	return EntryOptions[K, V]{
		PostEvictionCallbacks: []PostEvictionRegistration[K, V]{{Callback: cb}},
	}
}

type logRecord struct {
	level  string
	msg    string
	fields Fields
}

type recordingLogger struct {
	mu      sync.Mutex
	records []logRecord
}

func (l *recordingLogger) add(level, msg string, f Fields) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, logRecord{level: level, msg: msg, fields: f})
}

func (l *recordingLogger) Debug(msg string, f Fields) { l.add("debug", msg, f) }
func (l *recordingLogger) Info(msg string, f Fields)  { l.add("info", msg, f) }
func (l *recordingLogger) Warn(msg string, f Fields)  { l.add("warn", msg, f) }
func (l *recordingLogger) Error(msg string, f Fields) { l.add("error", msg, f) }

func (l *recordingLogger) count(level string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, r := range l.records {
		if r.level == level {
			n++
		}
	}
	return n
}

type countingMetrics struct {
	hits, misses atomic.Int64
	mu           sync.Mutex
	evicts       map[EvictionReason]int
	entries      atomic.Int64
}

func (m *countingMetrics) Hit()  { m.hits.Add(1) }
func (m *countingMetrics) Miss() { m.misses.Add(1) }
func (m *countingMetrics) Evict(r EvictionReason) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.evicts == nil {
		m.evicts = make(map[EvictionReason]int)
	}
	m.evicts[r]++
}
func (m *countingMetrics) Size(entries int, _ int64) { m.entries.Store(int64(entries)) }

func (m *countingMetrics) evictions(r EvictionReason) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.evicts[r]
}
