package cache

import (
	"context"
	"time"
)

// startScanner launches the background expiration ticker. It is not used
// with ScanOnAccess, where operations drive every scan.
func (c *cache[K, V]) startScanner() {
	freq := c.opt.ExpirationScanFrequency
	if freq <= 0 {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.stopScanner = cancel
	c.goBackground(func() {
		t := time.NewTicker(freq)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if c.scanning.CompareAndSwap(false, true) {
					c.lastScan.Store(c.now())
					c.scanExpired()
					c.scanning.Store(false)
				}
			}
		}
	})
}

// maybeScan starts an asynchronous scan if the scan interval has elapsed
// since the last one (always, for ScanOnAccess) and none is running.
func (c *cache[K, V]) maybeScan(now int64) {
	freq := c.opt.ExpirationScanFrequency
	if freq != ScanOnAccess && now-c.lastScan.Load() <= int64(freq) {
		return
	}
	if !c.scanning.CompareAndSwap(false, true) {
		return
	}
	c.lastScan.Store(now)
	started := c.goBackground(func() {
		defer c.scanning.Store(false)
		c.scanExpired()
	})
	if !started {
		c.scanning.Store(false)
	}
}

// scanExpired removes every resident entry that is no longer valid.
func (c *cache[K, V]) scanExpired() {
	now := c.now()
	var expired []*Entry[K, V]
	for _, s := range c.shards {
		s.mu.RLock()
		for _, e := range s.m {
			if e.expired(now) {
				expired = append(expired, e)
			}
		}
		s.mu.RUnlock()
	}

	removed := 0
	for _, e := range expired {
		if c.removeEntry(e, EvictionExpired) {
			removed++
		}
	}
	if removed > 0 {
		c.reportSize()
		c.opt.Logger.Debug("cache: expiration scan", Fields{"removed": removed})
	}
}
