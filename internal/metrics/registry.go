package metrics

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/atelierhq/atelier-auction-backend/internal/infrastructure/telemetry"
)

// Registry holds all domain-specific metrics for the application
type Registry struct {
	meter metric.Meter

	// Bidding Metrics
	BidAmount          metric.Int64Histogram
	BidAcceptedCounter metric.Int64Counter
	BidRejectedCounter metric.Int64Counter
	BidsPerSecond      metric.Float64ObservableGauge

	// Settlement Metrics
	SettlementCounter   metric.Int64Counter
	SweepRunsCounter    metric.Int64Counter
	SweepSettledCounter metric.Int64Counter
	SweepFailureCounter metric.Int64Counter

	// System Metrics
	DatabaseConnectionPool metric.Int64ObservableGauge
	CacheLookupCounter     metric.Int64Counter
	APIRequestDuration     metric.Float64Histogram
	APIRequestCounter      metric.Int64Counter

	// State for observable metrics
	mu            sync.Mutex
	dbPoolSize    int64
	bidsProcessed int64
	lastBidCount  int64
	lastBidTime   time.Time
}

// NewRegistry creates a new metrics registry with all domain metrics
func NewRegistry(meterName string) (*Registry, error) {
	meter := telemetry.Meter(meterName)
	r := &Registry{
		meter:       meter,
		lastBidTime: time.Now(),
	}

	if err := r.initBiddingMetrics(); err != nil {
		return nil, err
	}

	if err := r.initSettlementMetrics(); err != nil {
		return nil, err
	}

	if err := r.initSystemMetrics(); err != nil {
		return nil, err
	}

	return r, nil
}

// initBiddingMetrics initializes bid placement metrics
func (r *Registry) initBiddingMetrics() error {
	var err error

	// Accepted bid amounts, integer minor units
	r.BidAmount, err = r.meter.Int64Histogram(
		"auction.bid.amount_minor",
		metric.WithDescription("Accepted bid amounts in integer minor units"),
		metric.WithExplicitBucketBoundaries(100, 1_000, 10_000, 100_000, 1_000_000, 10_000_000),
	)
	if err != nil {
		return err
	}

	// Bid outcome counters
	r.BidAcceptedCounter, err = r.meter.Int64Counter(
		"auction.bid.accepted_total",
		metric.WithDescription("Total number of accepted bids"),
	)
	if err != nil {
		return err
	}

	r.BidRejectedCounter, err = r.meter.Int64Counter(
		"auction.bid.rejected_total",
		metric.WithDescription("Total number of rejected bids, labelled by error code"),
	)
	if err != nil {
		return err
	}

	// Bids per second gauge
	r.BidsPerSecond, err = r.meter.Float64ObservableGauge(
		"auction.bid.throughput_per_second",
		metric.WithDescription("Current bid processing throughput per second"),
		metric.WithFloat64Callback(func(ctx context.Context, o metric.Float64Observer) error {
			r.mu.Lock()
			defer r.mu.Unlock()

			now := time.Now()
			elapsed := now.Sub(r.lastBidTime).Seconds()
			if elapsed > 0 {
				rate := float64(r.bidsProcessed-r.lastBidCount) / elapsed
				o.Observe(rate)
				r.lastBidCount = r.bidsProcessed
				r.lastBidTime = now
			}
			return nil
		}),
	)

	return err
}

// initSettlementMetrics initializes settlement and sweep metrics
func (r *Registry) initSettlementMetrics() error {
	var err error

	r.SettlementCounter, err = r.meter.Int64Counter(
		"auction.settlement.total",
		metric.WithDescription("Total number of settlements, labelled by outcome"),
	)
	if err != nil {
		return err
	}

	r.SweepRunsCounter, err = r.meter.Int64Counter(
		"auction.sweep.runs_total",
		metric.WithDescription("Total number of expiry sweep passes"),
	)
	if err != nil {
		return err
	}

	r.SweepSettledCounter, err = r.meter.Int64Counter(
		"auction.sweep.settled_total",
		metric.WithDescription("Settlements completed by the expiry sweep"),
	)
	if err != nil {
		return err
	}

	r.SweepFailureCounter, err = r.meter.Int64Counter(
		"auction.sweep.failure_total",
		metric.WithDescription("Settlements that failed during an expiry sweep"),
	)

	return err
}

// initSystemMetrics initializes system-level metrics
func (r *Registry) initSystemMetrics() error {
	var err error

	// Database connection pool
	r.DatabaseConnectionPool, err = r.meter.Int64ObservableGauge(
		"auction.system.db_connection_pool_size",
		metric.WithDescription("Current database connection pool size"),
		metric.WithInt64Callback(func(ctx context.Context, o metric.Int64Observer) error {
			r.mu.Lock()
			defer r.mu.Unlock()
			o.Observe(r.dbPoolSize)
			return nil
		}),
	)
	if err != nil {
		return err
	}

	// Cache lookups
	r.CacheLookupCounter, err = r.meter.Int64Counter(
		"auction.cache.lookup_total",
		metric.WithDescription("Auction snapshot cache lookups, labelled by hit or miss"),
	)
	if err != nil {
		return err
	}

	// API request duration
	r.APIRequestDuration, err = r.meter.Float64Histogram(
		"auction.api.request_duration",
		metric.WithDescription("API request duration in milliseconds"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 50, 100, 500, 1000, 5000),
	)
	if err != nil {
		return err
	}

	// API request counter
	r.APIRequestCounter, err = r.meter.Int64Counter(
		"auction.api.request_total",
		metric.WithDescription("Total number of API requests"),
	)

	return err
}

// SetDBPoolSize sets the database connection pool size
func (r *Registry) SetDBPoolSize(size int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dbPoolSize = size
}

// RecordBidPlaced records an accepted bid
func (r *Registry) RecordBidPlaced(ctx context.Context, amountMinor int64) {
	r.BidAmount.Record(ctx, amountMinor)
	r.BidAcceptedCounter.Add(ctx, 1)

	r.mu.Lock()
	r.bidsProcessed++
	r.mu.Unlock()
}

// RecordBidRejected records a rejected bid by error code
func (r *Registry) RecordBidRejected(ctx context.Context, code string) {
	r.BidRejectedCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("code", code),
	))

	r.mu.Lock()
	r.bidsProcessed++
	r.mu.Unlock()
}

// RecordSettlement records a settlement by outcome
func (r *Registry) RecordSettlement(ctx context.Context, outcome string) {
	r.SettlementCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
	))
}

// RecordSweep records one expiry sweep pass
func (r *Registry) RecordSweep(ctx context.Context, attempted, failed int) {
	r.SweepRunsCounter.Add(ctx, 1)

	if settled := attempted - failed; settled > 0 {
		r.SweepSettledCounter.Add(ctx, int64(settled))
	}
	if failed > 0 {
		r.SweepFailureCounter.Add(ctx, int64(failed))
	}
}

// RecordCacheLookup records an auction snapshot cache lookup
func (r *Registry) RecordCacheLookup(ctx context.Context, hit bool) {
	r.CacheLookupCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("hit", hit),
	))
}

// RecordAPIRequest records API request metrics
func (r *Registry) RecordAPIRequest(ctx context.Context, duration float64, method, path string, statusCode int) {
	attrs := []attribute.KeyValue{
		attribute.String("method", method),
		attribute.String("path", path),
		attribute.Int("status_code", statusCode),
	}

	r.APIRequestDuration.Record(ctx, duration, metric.WithAttributes(attrs...))
	r.APIRequestCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
}
