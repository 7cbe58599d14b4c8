// Package history 维护“笔记已新增”的修订号，历史列表据此刷新。
package history

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"xhs_note_console/logger"
)

// Counter is a monotonically increasing revision. Each successful generation
// bumps it once.
type Counter struct {
	rev atomic.Uint64

	mu       sync.Mutex
	watchers map[chan uint64]struct{}
}

func NewCounter() *Counter {
	return &Counter{watchers: make(map[chan uint64]struct{})}
}

// NoteCreated bumps the revision and wakes every watcher.
func (c *Counter) NoteCreated() {
	// bump under mu so watchers never see revisions out of order
	c.mu.Lock()
	defer c.mu.Unlock()
	rev := c.rev.Add(1)
	logger.Log.Debug("history revision bumped", zap.Uint64("revision", rev))

	for ch := range c.watchers {
		// keep only the newest revision for slow readers
		select {
		case <-ch:
		default:
		}
		ch <- rev
	}
}

// Revision returns the current revision, 0 before any note was created.
func (c *Counter) Revision() uint64 {
	return c.rev.Load()
}

// Watch delivers revisions bumped after the call. The channel is closed when
// ctx is done. A slow reader sees only the latest revision.
func (c *Counter) Watch(ctx context.Context) <-chan uint64 {
	ch := make(chan uint64, 1)

	c.mu.Lock()
	c.watchers[ch] = struct{}{}
	c.mu.Unlock()

	go func() {
		<-ctx.Done()
		c.mu.Lock()
		delete(c.watchers, ch)
		close(ch)
		c.mu.Unlock()
	}()
	return ch
}
