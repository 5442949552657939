package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"rewardengine/internal/config"
	"rewardengine/internal/core"
	"rewardengine/internal/event"
	"rewardengine/internal/ingestion"
	"rewardengine/internal/observability"
	"rewardengine/internal/oracle"
	"rewardengine/internal/persistence"
	"rewardengine/internal/projection"
	"rewardengine/internal/query"
	"rewardengine/internal/recorder"
	"rewardengine/internal/server"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

const replayBatchSize = 1000

// Readiness dependencies reported on /readyz.
const (
	depReplay = "replay"
	depNATS   = "nats"
)

func main() {
	configPath := flag.String("config", os.Getenv("REWARD_CONFIG"), "path to a YAML, JSON or .env config file")
	flag.Parse()

	logger := observability.NewLogger("rewardengine")

	if err := godotenv.Load(); err != nil {
		logger.Debug().Msg(".env file not found, relying on process environment")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("load config")
	}

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("reward engine stopped")
	}
}

func run(cfg config.Config, logger zerolog.Logger) error {
	logger.Info().Msg("reward engine starting")

	// --- Context with graceful shutdown ---
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	metrics := observability.NewMetrics()
	healthChecker := observability.NewHealthChecker(depReplay, depNATS)

	// --- Postgres ---
	db, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("postgres open: %w", err)
	}
	defer db.Close()

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres ping: %w", err)
	}
	logger.Info().Msg("postgres connected")

	migrator := persistence.NewMigrator(db, os.DirFS(cfg.MigrationsDir), logger)
	if err := migrator.Up(ctx); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	snapMgr := persistence.NewSnapshotManager(db, logger)

	// --- Programs ---
	curves, err := loadCurves(cfg.CurveFile)
	if err != nil {
		return fmt.Errorf("load curves: %w", err)
	}
	board := oracle.NewBoard()
	coord, err := buildCoordinator(cfg, curves, board, logger)
	if err != nil {
		return fmt.Errorf("build programs: %w", err)
	}
	feeCollector, err := cfg.FeeCollectorID()
	if err != nil {
		return err
	}

	// --- Channels ---
	// The persist channel blocks (backpressure), the projection channel drops.
	persistCoreChan := make(chan core.CoreOutput, cfg.PersistChanSize)
	projectionCoreChan := make(chan core.CoreOutput, cfg.ProjectionChanSize)
	persistWorkerChan := make(chan persistence.LogEntry, cfg.PersistChanSize)
	projectionWorkerChan := make(chan projection.ProjectionOutput, cfg.ProjectionChanSize)
	publishChan := make(chan ingestion.PublishableEvent, 4096)
	rawEventChan := make(chan ingestion.RawEvent, 4096)

	deterministicCore := core.NewDeterministicCore(core.Config{
		Coordinator:   coord,
		Board:         board,
		FeeCollector:  feeCollector,
		DBChecker:     persistence.NewPostgresIdempotencyChecker(db),
		LRUCapacity:   cfg.IdempotencyLRUCapacity,
		CheckInterval: cfg.InvariantCheckInterval,
		Metrics:       metrics,
		Logger:        logger.With().Str("component", "core").Logger(),
	}, persistCoreChan, projectionCoreChan)

	// --- Recovery: snapshot + replay ---
	snap, err := snapMgr.LoadLatestSnapshot(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to load snapshot, replaying from genesis")
		snap = nil
	}
	if snap != nil {
		if err := deterministicCore.RestoreFromSnapshot(snap); err != nil {
			return fmt.Errorf("restore snapshot at %d: %w", snap.Sequence, err)
		}
		logger.Info().Int64("sequence", snap.Sequence).Msg("snapshot restored")
	} else {
		logger.Info().Msg("no snapshot found, cold start from sequence 0")
	}

	replayed, err := replayEventLog(ctx, deterministicCore, snapMgr, metrics)
	if err != nil {
		return fmt.Errorf("event replay: %w", err)
	}
	if replayed > 0 {
		logger.Info().Int("events", replayed).Int64("next_sequence", deterministicCore.GetSequence()).Msg("event log replayed")
	}
	if snap != nil && replayed == 0 && snap.StateHash != deterministicCore.GetStateHash() {
		return fmt.Errorf("state hash mismatch after restore: snapshot %x, core %x",
			snap.StateHash, deterministicCore.GetStateHash())
	}
	healthChecker.SetReady(depReplay, true)

	// --- NATS ---
	nc, js, err := ingestion.ConnectNATS(cfg.NATSURL, logger)
	if err != nil {
		return fmt.Errorf("nats connect: %w", err)
	}
	defer nc.Close()

	if err := ingestion.EnsureStreams(ctx, js, logger); err != nil {
		return fmt.Errorf("ensure inbound streams: %w", err)
	}
	if err := ingestion.EnsureOutboundStream(ctx, js, logger); err != nil {
		return fmt.Errorf("ensure outbound stream: %w", err)
	}
	if err := ingestion.EnsurePayoutStream(ctx, js, logger); err != nil {
		return fmt.Errorf("ensure payout stream: %w", err)
	}

	// Payouts go live only after replay, which must never transfer twice.
	coord.SetTransfer(ingestion.NewJetStreamTransfer(js, logger))

	natsSubscriber := ingestion.NewNATSSubscriber(js, rawEventChan, logger)
	if err := natsSubscriber.Subscribe(ctx, ingestion.DefaultSubjects()); err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}
	healthChecker.SetReady(depNATS, true)

	outboundPublisher := ingestion.NewOutboundPublisher(js, publishChan, logger)

	// --- Claim history ---
	var rec recorder.Recorder = recorder.NewNoopRecorder()
	if cfg.RecorderPath != "" {
		sqliteRec, err := recorder.NewSQLiteRecorder(cfg.RecorderPath, logger)
		if err != nil {
			return fmt.Errorf("open claim recorder: %w", err)
		}
		rec = sqliteRec
	}
	defer rec.Close()

	// --- API server ---
	srv, err := server.New(cfg.GRPCAddr, cfg.HTTPAddr, &server.Deps{
		Coordinator:   coord,
		Curves:        curves.extra(),
		Injector:      ingestion.NewInjector(rawEventChan),
		Recorder:      rec,
		Query:         query.NewQueryService(db),
		DB:            db,
		SnapshotMgr:   snapMgr,
		HealthChecker: healthChecker,
		Metrics:       metrics,
		Logger:        logger.With().Str("component", "server").Logger(),
	})
	if err != nil {
		return fmt.Errorf("build server: %w", err)
	}

	// --- Start goroutines ---
	errChan := make(chan error, 10)

	// 1. Persistence worker
	persistWorker := persistence.NewPersistenceWorker(db, persistWorkerChan, cfg.PersistBatchSize, cfg.PersistFlushTimeout, metrics, logger)
	go func() {
		errChan <- persistWorker.Run(ctx)
	}()

	// 2. Projection worker
	projWorker := projection.NewProjectionWorker(db, rec, projectionWorkerChan, metrics, logger)
	go func() {
		errChan <- projWorker.Run(ctx)
	}()

	// 3. Outbound publisher
	go func() {
		errChan <- outboundPublisher.Run(ctx)
	}()

	// 4. Core output bridge
	bridgeDone := make(chan struct{})
	go func() {
		defer close(bridgeDone)
		bridgeCoreOutputs(ctx, persistCoreChan, projectionCoreChan, persistWorkerChan, projectionWorkerChan, publishChan, metrics)
	}()

	// 5. NATS and HTTP -> core ingestion loop
	go runIngestionLoop(ctx, rawEventChan, deterministicCore, metrics, logger)

	// 6. Channel gauges
	go reportChannels(ctx, metrics, map[string]func() (int, int){
		"persist":    func() (int, int) { return len(persistCoreChan), cap(persistCoreChan) },
		"projection": func() (int, int) { return len(projectionCoreChan), cap(projectionCoreChan) },
		"publish":    func() (int, int) { return len(publishChan), cap(publishChan) },
		"inbound":    func() (int, int) { return len(rawEventChan), cap(rawEventChan) },
	})

	// 7. gRPC health + reflection
	go func() {
		errChan <- srv.StartGRPC(ctx)
	}()

	// 8. HTTP/JSON API
	go func() {
		errChan <- srv.StartHTTP(ctx)
	}()

	// 9. Scheduled snapshots
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.SnapshotSchedule, func() {
		if err := takeSnapshot(ctx, deterministicCore, snapMgr, metrics, logger); err != nil {
			logger.Error().Err(err).Msg("scheduled snapshot failed")
		}
	}); err != nil {
		return fmt.Errorf("snapshot schedule %q: %w", cfg.SnapshotSchedule, err)
	}
	scheduler.Start()

	// 10. Prometheus metrics server
	go func() {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		metricsServer := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           metricsMux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			<-ctx.Done()
			shutCtx, c := context.WithTimeout(context.Background(), 5*time.Second)
			defer c()
			metricsServer.Shutdown(shutCtx)
		}()
		logger.Info().Str("addr", cfg.MetricsAddr).Msg("metrics server listening")
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("metrics server: %w", err)
		}
	}()

	srv.SetServing(true)
	logger.Info().
		Int64("sequence", deterministicCore.GetSequence()).
		Str("grpc", cfg.GRPCAddr).
		Str("http", cfg.HTTPAddr).
		Str("metrics", cfg.MetricsAddr).
		Msg("reward engine ready")

	// --- Wait for shutdown signal ---
	select {
	case sig := <-sigChan:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errChan:
		logger.Error().Err(err).Msg("goroutine failed, shutting down")
	}

	// --- Graceful shutdown ---
	srv.SetServing(false)
	<-scheduler.Stop().Done()
	natsSubscriber.Stop()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// The bridge is the only sender on the worker channels.
	<-bridgeDone
	close(persistWorkerChan)
	close(projectionWorkerChan)
	close(publishChan)

	if err := takeSnapshot(shutdownCtx, deterministicCore, snapMgr, metrics, logger); err != nil {
		logger.Error().Err(err).Msg("final snapshot failed")
	} else {
		logger.Info().Msg("final snapshot saved")
	}

	logger.Info().Msg("reward engine shutdown complete")
	return nil
}

// replayEventLog re-applies logged envelopes from the core's next sequence to
// the head of the log.
func replayEventLog(ctx context.Context, c *core.DeterministicCore, snapMgr *persistence.SnapshotManager, metrics *observability.Metrics) (int, error) {
	start := time.Now()
	total := 0
	for {
		envs, err := snapMgr.LoadEventsFrom(ctx, c.GetSequence(), replayBatchSize)
		if err != nil {
			return total, err
		}
		for _, env := range envs {
			if err := c.Replay(ctx, env); err != nil {
				return total, err
			}
		}
		total += len(envs)
		if len(envs) < replayBatchSize {
			break
		}
	}
	metrics.ReplayDuration.Set(time.Since(start).Seconds())
	return total, nil
}

// bridgeCoreOutputs converts core outputs into persistence, projection and
// publish messages. Only the persist leg blocks.
func bridgeCoreOutputs(
	ctx context.Context,
	persistIn <-chan core.CoreOutput,
	projectionIn <-chan core.CoreOutput,
	persistOut chan<- persistence.LogEntry,
	projectionOut chan<- projection.ProjectionOutput,
	publishOut chan<- ingestion.PublishableEvent,
	metrics *observability.Metrics,
) {
	for {
		select {
		case <-ctx.Done():
			return

		case output, ok := <-persistIn:
			if !ok {
				return
			}
			select {
			case persistOut <- persistence.NewLogEntry(output.Envelope, output.Batch):
			case <-ctx.Done():
				return
			}

			select {
			case publishOut <- ingestion.NewPublishableEvent(output.Envelope):
			default:
				metrics.PublishDrops.Inc()
			}

		case output, ok := <-projectionIn:
			if !ok {
				return
			}
			select {
			case projectionOut <- projection.NewProjectionOutput(output.Envelope, output.Batch, output.Receipts):
			default:
				metrics.ProjectionDrops.WithLabelValues("balances").Inc()
			}
		}
	}
}

// parsedEvent carries a typed event from the parse stage to the core loop.
type parsedEvent struct {
	evt      event.Event
	stream   string
	received time.Time
}

// runIngestionLoop parses raw events and feeds them to the core. Messages are
// acked once parsed and queued, not after core processing, so slow processing
// backs up the channel instead of expiring the ack wait. Unparseable input is
// acked and dropped since redelivery cannot fix it.
func runIngestionLoop(
	ctx context.Context,
	rawChan <-chan ingestion.RawEvent,
	c *core.DeterministicCore,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) {
	typedChan := make(chan parsedEvent, 4096)

	go func() {
		defer close(typedChan)
		for {
			select {
			case <-ctx.Done():
				return
			case raw := <-rawChan:
				evt, err := ingestion.ParseRawEvent(raw)
				if err != nil {
					logger.Warn().Err(err).Str("subject", raw.Subject).Msg("dropping unparseable event")
					raw.AckFunc()
					continue
				}
				select {
				case typedChan <- parsedEvent{evt: evt, stream: streamOf(raw.Subject), received: raw.Timestamp}:
					raw.AckFunc()
				case <-ctx.Done():
					raw.NakFunc()
					return
				}
			}
		}
	}()

	for p := range typedChan {
		if err := c.ProcessEvent(ctx, p.evt); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			logger.Error().Err(err).
				Str("event_type", p.evt.EventType().String()).
				Str("key", p.evt.IdempotencyKey()).
				Msg("event not applied")
			continue
		}
		metrics.IngestToApply.WithLabelValues(p.stream).Observe(time.Since(p.received).Seconds())
	}
}

// streamOf maps "reward.claims.reward" to "claims"; injected events report
// their source as is.
func streamOf(subject string) string {
	parts := strings.SplitN(subject, ".", 3)
	if len(parts) >= 2 && parts[0] == "reward" {
		return parts[1]
	}
	return subject
}

func reportChannels(ctx context.Context, metrics *observability.Metrics, channels map[string]func() (int, int)) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for name, sample := range channels {
				size, capacity := sample()
				metrics.SetChannelMetrics(name, size, capacity)
			}
		}
	}
}

// takeSnapshot saves and verifies a snapshot of the core. A snapshot ahead
// of the persisted log is skipped: recovery could not replay the events
// between the log head and the snapshot.
func takeSnapshot(ctx context.Context, c *core.DeterministicCore, snapMgr *persistence.SnapshotManager, metrics *observability.Metrics, logger zerolog.Logger) error {
	start := time.Now()

	snap := c.CreateSnapshotState()
	if snap.Sequence < 0 {
		return nil
	}
	head, err := snapMgr.GetLatestSequence(ctx)
	if err != nil {
		return fmt.Errorf("read log head: %w", err)
	}
	if head < snap.Sequence {
		logger.Warn().Int64("snapshot", snap.Sequence).Int64("log_head", head).Msg("log behind core, snapshot skipped")
		return nil
	}

	size, err := snapMgr.SaveSnapshot(ctx, snap)
	if err != nil {
		return err
	}
	if err := snapMgr.MarkVerified(ctx, snap.Sequence); err != nil {
		return fmt.Errorf("verify snapshot at %d: %w", snap.Sequence, err)
	}

	metrics.SnapshotTaken.Inc()
	metrics.SnapshotDuration.Observe(time.Since(start).Seconds())
	metrics.SnapshotSizeBytes.Set(float64(size))
	metrics.SnapshotLastSeq.Set(float64(snap.Sequence))
	logger.Info().Int64("sequence", snap.Sequence).Int("bytes", size).Msg("snapshot saved")
	return nil
}
