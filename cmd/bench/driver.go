package main

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/IvanBrykalov/memorycache/cache"
)

// driver is the slice of a cache API the workload needs.
type driver interface {
	Get(ctx context.Context, k string) bool
	Set(ctx context.Context, k, v string)
	Len() int
	Close()
}

// ---- memorycache ----

type memDriver struct {
	c   cache.Cache[string, string]
	ttl time.Duration
}

func newMemDriver(opt cache.Options[string, string], ttl time.Duration) (*memDriver, error) {
	if opt.SizeLimit > 0 && opt.Sizer == nil {
		// One unit per entry, so size-limit means the same for every driver.
		opt.Sizer = func(string, string) int64 { return 1 }
	}
	c, err := cache.New(opt)
	if err != nil {
		return nil, err
	}
	return &memDriver{c: c, ttl: ttl}, nil
}

func (d *memDriver) Get(ctx context.Context, k string) bool {
	_, ok, _ := d.c.Get(ctx, k)
	return ok
}

func (d *memDriver) Set(ctx context.Context, k, v string) {
	if d.ttl > 0 {
		_ = d.c.SetWithTTL(ctx, k, v, d.ttl)
		return
	}
	_ = d.c.Set(ctx, k, v)
}

func (d *memDriver) Len() int { return d.c.Count() }
func (d *memDriver) Close()   { _ = d.c.Close() }

// ---- ristretto ----

type ristrettoDriver struct {
	c   *ristretto.Cache[string, string]
	ttl time.Duration
}

func newRistrettoDriver(limit int64, ttl time.Duration) (*ristrettoDriver, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("ristretto needs --size-limit > 0")
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, string]{
		NumCounters: limit * 10,
		MaxCost:     limit,
		BufferItems: 64,
		Metrics:     true,
	})
	if err != nil {
		return nil, err
	}
	return &ristrettoDriver{c: c, ttl: ttl}, nil
}

func (d *ristrettoDriver) Get(_ context.Context, k string) bool {
	_, ok := d.c.Get(k)
	return ok
}

func (d *ristrettoDriver) Set(_ context.Context, k, v string) {
	if d.ttl > 0 {
		d.c.SetWithTTL(k, v, 1, d.ttl)
		return
	}
	d.c.Set(k, v, 1)
}

// Len is approximate: ristretto only tracks admissions and evictions.
func (d *ristrettoDriver) Len() int {
	d.c.Wait()
	m := d.c.Metrics
	return int(m.KeysAdded() - m.KeysEvicted())
}

func (d *ristrettoDriver) Close() { d.c.Close() }

// ---- golang-lru ----

type lruDriver struct {
	c *expirable.LRU[string, string]
}

func newLRUDriver(limit int64, ttl time.Duration) (*lruDriver, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("lru needs --size-limit > 0")
	}
	return &lruDriver{c: expirable.NewLRU[string, string](int(limit), nil, ttl)}, nil
}

func (d *lruDriver) Get(_ context.Context, k string) bool {
	_, ok := d.c.Get(k)
	return ok
}

func (d *lruDriver) Set(_ context.Context, k, v string) { d.c.Add(k, v) }
func (d *lruDriver) Len() int                          { return d.c.Len() }
func (d *lruDriver) Close()                            {}
