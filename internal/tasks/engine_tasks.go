package tasks

import (
	"context"
	"log/slog"
	"time"
)

const (
	DefaultPublishInterval = 1 * time.Second
	DefaultEvictInterval   = 10 * time.Minute
)

// ReadyPublisher drains ready flights to the publish sink
type ReadyPublisher interface {
	PublishReady(ctx context.Context) int
}

// Evicter removes stale flights
type Evicter interface {
	Evict(ctx context.Context) int
}

// PublishTask drains and publishes ready flights on every tick
type PublishTask struct {
	engine   ReadyPublisher
	interval time.Duration
}

func NewPublishTask(engine ReadyPublisher, interval time.Duration) *PublishTask {
	if interval <= 0 {
		interval = DefaultPublishInterval
	}
	return &PublishTask{engine: engine, interval: interval}
}

func (t *PublishTask) Run(ctx context.Context) error {
	if n := t.engine.PublishReady(ctx); n > 0 {
		slog.Debug("Publish cycle complete", "published", n)
	}
	return nil
}

func (t *PublishTask) Interval() time.Duration { return t.interval }
func (t *PublishTask) Name() string            { return "publish" }

// EvictTask sweeps stale flights out of the store on every tick
type EvictTask struct {
	engine   Evicter
	interval time.Duration
}

func NewEvictTask(engine Evicter, interval time.Duration) *EvictTask {
	if interval <= 0 {
		interval = DefaultEvictInterval
	}
	return &EvictTask{engine: engine, interval: interval}
}

func (t *EvictTask) Run(ctx context.Context) error {
	n := t.engine.Evict(ctx)
	slog.Info("Evicted stale flights", "evicted", n)
	return nil
}

func (t *EvictTask) Interval() time.Duration { return t.interval }
func (t *EvictTask) Name() string            { return "evict" }
