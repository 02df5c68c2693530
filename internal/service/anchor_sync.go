package service

import (
	"context"
	"sync"
	"time"

	"github.com/Harshitk-cp/refinery/internal/domain"
	"github.com/Harshitk-cp/refinery/internal/layer"
	"github.com/Harshitk-cp/refinery/internal/scoring"
	"go.uber.org/zap"
)

const (
	defaultAnchorFlushInterval = 5 * time.Second
	defaultAnchorWarmLimit     = 5000
	// maxAnchorBuffer bounds records held while the store is unreachable.
	maxAnchorBuffer = 10000
)

// AnchorSync mirrors the in-process anchor set into an AnchorStore. New
// anchors are buffered and flushed in batches; Warm preloads the set from
// the store at startup.
type AnchorSync struct {
	store   domain.AnchorStore
	anchors *layer.AnchorSet
	metrics *Metrics
	logger  *zap.Logger

	interval  time.Duration
	warmLimit int
	dims      int
	maxBuffer int

	mu      sync.Mutex
	pending []domain.AnchorRecord
	dropped int

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewAnchorSync(store domain.AnchorStore, anchors *layer.AnchorSet, logger *zap.Logger) *AnchorSync {
	return &AnchorSync{
		store:     store,
		anchors:   anchors,
		metrics:   NewMetrics(),
		logger:    logger,
		interval:  defaultAnchorFlushInterval,
		warmLimit: defaultAnchorWarmLimit,
		dims:      layer.DefaultFingerprintDims,
		maxBuffer: maxAnchorBuffer,
		stopCh:    make(chan struct{}),
	}
}

func (a *AnchorSync) SetInterval(d time.Duration) {
	if d > 0 {
		a.interval = d
	}
}

// Enqueue buffers records for the next flush. When the buffer is full the
// oldest records are dropped.
func (a *AnchorSync) Enqueue(records []domain.AnchorRecord) {
	if len(records) == 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pending = append(a.pending, records...)
	a.trimLocked()
}

// trimLocked drops the oldest records beyond the buffer bound. a.mu must be
// held.
func (a *AnchorSync) trimLocked() {
	over := len(a.pending) - a.maxBuffer
	if over <= 0 {
		return
	}
	a.pending = a.pending[over:]
	a.dropped += over
	a.metrics.AnchorsDropped.Add(float64(over))
	a.logger.Warn("anchor buffer full, dropping oldest records",
		zap.Int("dropped", over),
		zap.Int("dropped_total", a.dropped))
}

// Pending returns the number of buffered records.
func (a *AnchorSync) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}

// Dropped returns how many records were discarded because the buffer was full.
func (a *AnchorSync) Dropped() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dropped
}

// Flush writes buffered records. On failure the batch is put back in front
// of anything enqueued meanwhile.
func (a *AnchorSync) Flush(ctx context.Context) error {
	a.mu.Lock()
	batch := a.pending
	a.pending = nil
	a.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}
	if err := a.store.SaveBatch(ctx, batch); err != nil {
		a.metrics.AnchorFlushErrors.Inc()
		a.mu.Lock()
		a.pending = append(batch, a.pending...)
		a.trimLocked()
		a.mu.Unlock()
		return err
	}
	a.logger.Debug("flushed anchors", zap.Int("count", len(batch)))
	return nil
}

// Warm loads the most recent persisted anchors into the set.
func (a *AnchorSync) Warm(ctx context.Context) (int, error) {
	keys, err := a.store.LoadRecent(ctx, a.warmLimit)
	if err != nil {
		return 0, err
	}
	added := a.anchors.Add(keys...)
	a.metrics.AnchorSetSize.Set(float64(a.anchors.Len()))
	return added, nil
}

// Similar returns keys of persisted anchors whose content fingerprint is
// closest to text.
func (a *AnchorSync) Similar(ctx context.Context, text string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 10
	}
	return a.store.FindSimilar(ctx, scoring.Fingerprint(text, a.dims), limit)
}

// Start flushes the buffer on a periodic schedule in a background goroutine.
func (a *AnchorSync) Start() {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ticker := time.NewTicker(a.interval)
		defer ticker.Stop()

		a.logger.Info("anchor sync started", zap.Duration("interval", a.interval))

		for {
			select {
			case <-ticker.C:
				a.flushWithTimeout()
			case <-a.stopCh:
				a.flushWithTimeout()
				a.logger.Info("anchor sync stopped")
				return
			}
		}
	}()
}

// Stop flushes what is left and stops the background loop.
func (a *AnchorSync) Stop() {
	close(a.stopCh)
	a.wg.Wait()
}

func (a *AnchorSync) flushWithTimeout() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := a.Flush(ctx); err != nil {
		a.logger.Warn("failed to flush anchors",
			zap.Int("pending", a.Pending()),
			zap.Error(err))
	}
}
