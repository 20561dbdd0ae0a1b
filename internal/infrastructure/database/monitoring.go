package database

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// PoolStatsSink receives periodic connection pool gauge updates. The
// metrics registry satisfies it.
type PoolStatsSink interface {
	SetDBPoolSize(size int64)
}

// Monitor samples connection pool statistics on an interval, publishes
// them to a sink, and warns when the pool runs dry. Acquire stalls on
// the bidding path show up here before they show up as latency.
type Monitor struct {
	pool     *ConnectionPool
	sink     PoolStatsSink
	logger   *zap.Logger
	interval time.Duration

	lastEmptyAcquires int64
}

func NewMonitor(pool *ConnectionPool, sink PoolStatsSink, logger *zap.Logger, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Monitor{
		pool:     pool,
		sink:     sink,
		logger:   logger,
		interval: interval,
	}
}

// Run samples until ctx is cancelled. Call it from its own goroutine.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Observe()
		}
	}
}

// Observe takes a single reading. Run calls it on every tick; tests can
// call it directly.
func (m *Monitor) Observe() {
	stat := m.pool.Stat()

	m.sink.SetDBPoolSize(int64(stat.TotalConns()))

	// EmptyAcquireCount is cumulative, so only growth since the last
	// reading means callers waited for a connection in this window.
	if empty := stat.EmptyAcquireCount(); empty > m.lastEmptyAcquires {
		m.logger.Warn("connection pool exhausted during interval",
			zap.Int64("stalled_acquires", empty-m.lastEmptyAcquires),
			zap.Int32("max_conns", stat.MaxConns()),
			zap.Int32("acquired_conns", stat.AcquiredConns()))
		m.lastEmptyAcquires = empty
	}

	m.logger.Debug("connection pool stats",
		zap.Int32("total_conns", stat.TotalConns()),
		zap.Int32("idle_conns", stat.IdleConns()),
		zap.Int32("acquired_conns", stat.AcquiredConns()))
}
