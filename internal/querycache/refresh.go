package querycache

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// RunRefresh reloads, every interval, each key that was read within the stale time.
// It blocks until ctx is done and the refreshes it started have finished.
func (c *Cache[V]) RunRefresh(ctx context.Context, interval time.Duration) {
	c.logger.Info("start refreshing queries", zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("waiting for the query refreshes to finish...")
			c.refreshWG.Wait()
			c.logger.Info("query refresh stopped")
			return
		case <-ticker.C:
			c.RefreshActive(ctx)
		}
	}
}

// RefreshActive starts a reload of every recently read key and returns how many were started.
func (c *Cache[V]) RefreshActive(ctx context.Context) int {
	started := 0
	for key, item := range c.records.Items() {
		rec := item.Object.(*record[V])

		rec.mu.Lock()
		active := c.now().Sub(rec.lastRead) < c.activeWindow()
		rec.mu.Unlock()
		if !active {
			continue
		}

		started++
		c.refreshWG.Add(1)
		go func(key string, rec *record[V]) {
			defer c.refreshWG.Done()
			if _, err := c.load(ctx, key, rec); err != nil {
				c.logger.Debug("query refresh failed: "+err.Error(), zap.String("key", key))
			}
		}(key, rec)
	}

	return started
}

// WaitRefreshes blocks until the refreshes started so far are done.
func (c *Cache[V]) WaitRefreshes() {
	c.refreshWG.Wait()
}

func (c *Cache[V]) activeWindow() time.Duration {
	if c.options.StaleTime <= 0 {
		return time.Minute
	}
	return c.options.StaleTime
}
