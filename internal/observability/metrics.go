package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics of the reward engine.
type Metrics struct {
	// --- Core processing ---
	CoreEventsApplied  *prometheus.CounterVec
	CoreEventsRejected *prometheus.CounterVec
	CoreEventDuration  *prometheus.HistogramVec
	CoreJournals       *prometheus.CounterVec
	CoreStateHashDur   prometheus.Histogram
	CoreSequence       prometheus.Gauge

	// --- Latency ---
	IngestToApply       *prometheus.HistogramVec
	PersistBatchDur     prometheus.Histogram
	ProjectionUpdateDur *prometheus.HistogramVec

	// --- Channels & backpressure ---
	ChannelSize         *prometheus.GaugeVec
	ChannelCapacity     *prometheus.GaugeVec
	ChannelUtilization  *prometheus.GaugeVec
	ProjectionDrops     *prometheus.CounterVec
	PublishDrops        prometheus.Counter
	PersistBackpressure prometheus.Counter

	// --- Idempotency & ordering ---
	IdempotencyDuplicates *prometheus.CounterVec
	DedupLRUSize          prometheus.Gauge
	DedupLRUEvictions     prometheus.Counter
	DedupTier2Errors      prometheus.Counter
	EventSequenceGap      *prometheus.CounterVec
	EventOutOfOrder       *prometheus.CounterVec
	OracleStaleReadings   *prometheus.CounterVec

	// --- Rewards ---
	ClaimsPaid        *prometheus.CounterVec
	ClaimedTokens     *prometheus.CounterVec
	ClaimFeeTokens    *prometheus.CounterVec
	ClaimFailures     *prometheus.CounterVec
	OracleUnavailable *prometheus.CounterVec
	LedgerCutovers    prometheus.Counter
	ActiveAccounts    *prometheus.GaugeVec

	// --- Persistence ---
	PersistEventsWritten   prometheus.Counter
	PersistJournalsWritten prometheus.Counter
	PersistBatchSize       prometheus.Histogram
	PersistErrors          *prometheus.CounterVec
	PersistRetry           prometheus.Counter
	PersistLastSequence    prometheus.Gauge

	// --- Snapshot ---
	SnapshotTaken     prometheus.Counter
	SnapshotDuration  prometheus.Histogram
	SnapshotSizeBytes prometheus.Gauge
	SnapshotLastSeq   prometheus.Gauge
	ReplayEventsTotal prometheus.Counter
	ReplayDuration    prometheus.Gauge

	// --- Query API ---
	QueryRequests *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
	QueryErrors   *prometheus.CounterVec
}

// NewMetrics creates all metrics on the default registry.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith creates all metrics on reg. Tests pass a fresh
// prometheus.NewRegistry() so repeated construction does not collide.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	latencyBuckets := []float64{
		0.000001, 0.000005, 0.00001, 0.000025, 0.00005,
		0.0001, 0.00025, 0.0005, 0.001, 0.002, 0.005, 0.01,
	}

	ingestBuckets := []float64{
		0.00001, 0.000025, 0.00005, 0.0001, 0.00025,
		0.0005, 0.001, 0.002, 0.005, 0.01,
	}

	return &Metrics{
		// Core processing
		CoreEventsApplied: f.NewCounterVec(prometheus.CounterOpts{
			Name: "reward_core_events_applied_total",
			Help: "Events successfully applied by core",
		}, []string{"event_type"}),

		CoreEventsRejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "reward_core_events_rejected_total",
			Help: "Events rejected (dedup, gap, validation, ledger error)",
		}, []string{"event_type", "reason"}),

		CoreEventDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "reward_core_event_apply_duration_seconds",
			Help:    "Time to apply a single event in core",
			Buckets: latencyBuckets,
		}, []string{"event_type"}),

		CoreJournals: f.NewCounterVec(prometheus.CounterOpts{
			Name: "reward_core_journals_generated_total",
			Help: "Journal entries generated",
		}, []string{"journal_type"}),

		CoreStateHashDur: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "reward_core_state_hash_duration_seconds",
			Help:    "Time to compute state hash",
			Buckets: latencyBuckets,
		}),

		CoreSequence: f.NewGauge(prometheus.GaugeOpts{
			Name: "reward_core_sequence",
			Help: "Next global sequence the core will assign",
		}),

		// Latency
		IngestToApply: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "reward_ingest_to_apply_seconds",
			Help:    "Time from message receipt to core apply",
			Buckets: ingestBuckets,
		}, []string{"stream"}),

		PersistBatchDur: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "reward_persist_batch_duration_seconds",
			Help:    "Time to write one persistence batch",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),

		ProjectionUpdateDur: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "reward_projection_update_duration_seconds",
			Help:    "Time to apply one output to a projection",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		}, []string{"projection"}),

		// Channels & backpressure
		ChannelSize: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "reward_channel_size",
			Help: "Buffered items per channel",
		}, []string{"channel"}),

		ChannelCapacity: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "reward_channel_capacity",
			Help: "Capacity per channel",
		}, []string{"channel"}),

		ChannelUtilization: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "reward_channel_utilization_ratio",
			Help: "size / capacity per channel",
		}, []string{"channel"}),

		ProjectionDrops: f.NewCounterVec(prometheus.CounterOpts{
			Name: "reward_projection_drops_total",
			Help: "Outputs dropped because the projection channel was full",
		}, []string{"projection"}),

		PublishDrops: f.NewCounter(prometheus.CounterOpts{
			Name: "reward_publish_drops_total",
			Help: "Outbound messages dropped",
		}),

		PersistBackpressure: f.NewCounter(prometheus.CounterOpts{
			Name: "reward_persist_backpressure_total",
			Help: "Times the core blocked on a full persist channel",
		}),

		// Idempotency & ordering
		IdempotencyDuplicates: f.NewCounterVec(prometheus.CounterOpts{
			Name: "reward_idempotency_duplicates_total",
			Help: "Duplicate events detected",
		}, []string{"event_type", "tier"}),

		DedupLRUSize: f.NewGauge(prometheus.GaugeOpts{
			Name: "reward_dedup_lru_size",
			Help: "Keys held in the idempotency LRU",
		}),

		DedupLRUEvictions: f.NewCounter(prometheus.CounterOpts{
			Name: "reward_dedup_lru_evictions_total",
			Help: "Keys evicted from the idempotency LRU",
		}),

		DedupTier2Errors: f.NewCounter(prometheus.CounterOpts{
			Name: "reward_dedup_tier2_errors_total",
			Help: "Failed Postgres idempotency lookups",
		}),

		EventSequenceGap: f.NewCounterVec(prometheus.CounterOpts{
			Name: "reward_event_sequence_gap_total",
			Help: "Source sequence gaps per partition kind",
		}, []string{"partition"}),

		EventOutOfOrder: f.NewCounterVec(prometheus.CounterOpts{
			Name: "reward_event_out_of_order_total",
			Help: "Out-of-order source sequences per partition kind",
		}, []string{"partition"}),

		OracleStaleReadings: f.NewCounterVec(prometheus.CounterOpts{
			Name: "reward_oracle_stale_readings_total",
			Help: "Oracle readings skipped as stale",
		}, []string{"pool"}),

		// Rewards
		ClaimsPaid: f.NewCounterVec(prometheus.CounterOpts{
			Name: "reward_claims_paid_total",
			Help: "Committed claims",
		}, []string{"kind", "program"}),

		ClaimedTokens: f.NewCounterVec(prometheus.CounterOpts{
			Name: "reward_claimed_tokens_total",
			Help: "Net tokens paid out (base units, float approximation)",
		}, []string{"kind", "program"}),

		ClaimFeeTokens: f.NewCounterVec(prometheus.CounterOpts{
			Name: "reward_claim_fee_tokens_total",
			Help: "Claim fees withheld (base units, float approximation)",
		}, []string{"kind", "program"}),

		ClaimFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "reward_claim_failures_total",
			Help: "Rejected claims by reason",
		}, []string{"kind", "reason"}),

		OracleUnavailable: f.NewCounterVec(prometheus.CounterOpts{
			Name: "reward_oracle_unavailable_total",
			Help: "Events aborted on an unavailable oracle",
		}, []string{"event_type"}),

		LedgerCutovers: f.NewCounter(prometheus.CounterOpts{
			Name: "reward_ledger_cutovers_total",
			Help: "Reward ledger version cutovers",
		}),

		ActiveAccounts: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "reward_ledger_accounts",
			Help: "Accounts tracked per ledger",
		}, []string{"program"}),

		// Persistence
		PersistEventsWritten: f.NewCounter(prometheus.CounterOpts{
			Name: "reward_persist_events_written_total",
			Help: "Event envelopes written to Postgres",
		}),

		PersistJournalsWritten: f.NewCounter(prometheus.CounterOpts{
			Name: "reward_persist_journals_written_total",
			Help: "Journals written to Postgres",
		}),

		PersistBatchSize: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "reward_persist_batch_size",
			Help:    "Events per persistence batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),

		PersistErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "reward_persist_errors_total",
			Help: "Persistence failures by stage",
		}, []string{"stage"}),

		PersistRetry: f.NewCounter(prometheus.CounterOpts{
			Name: "reward_persist_retries_total",
			Help: "Persistence batch retries",
		}),

		PersistLastSequence: f.NewGauge(prometheus.GaugeOpts{
			Name: "reward_persist_last_sequence",
			Help: "Last durably written sequence",
		}),

		// Snapshot
		SnapshotTaken: f.NewCounter(prometheus.CounterOpts{
			Name: "reward_snapshot_taken_total",
			Help: "Snapshots written",
		}),

		SnapshotDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "reward_snapshot_duration_seconds",
			Help:    "Snapshot creation time",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 10.0},
		}),

		SnapshotSizeBytes: f.NewGauge(prometheus.GaugeOpts{
			Name: "reward_snapshot_size_bytes",
			Help: "Last snapshot size",
		}),

		SnapshotLastSeq: f.NewGauge(prometheus.GaugeOpts{
			Name: "reward_snapshot_last_sequence",
			Help: "Sequence of last snapshot",
		}),

		ReplayEventsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "reward_replay_events_total",
			Help: "Events replayed on startup",
		}),

		ReplayDuration: f.NewGauge(prometheus.GaugeOpts{
			Name: "reward_replay_duration_seconds",
			Help: "Total replay time",
		}),

		// Query API
		QueryRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "reward_query_requests_total",
			Help: "Query requests",
		}, []string{"endpoint", "status"}),

		QueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "reward_query_duration_seconds",
			Help:    "Query latency",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"endpoint"}),

		QueryErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "reward_query_errors_total",
			Help: "Query errors",
		}, []string{"endpoint", "code"}),
	}
}

// SetChannelMetrics updates channel utilization metrics.
func (m *Metrics) SetChannelMetrics(name string, size, capacity int) {
	m.ChannelSize.WithLabelValues(name).Set(float64(size))
	m.ChannelCapacity.WithLabelValues(name).Set(float64(capacity))
	if capacity > 0 {
		m.ChannelUtilization.WithLabelValues(name).Set(float64(size) / float64(capacity))
	}
}

// PartitionKind strips the partition key down to its kind ("shares:v1" ->
// "shares") so label cardinality stays bounded.
func PartitionKind(partition string) string {
	for i := 0; i < len(partition); i++ {
		if partition[i] == ':' {
			return partition[:i]
		}
	}
	return partition
}
