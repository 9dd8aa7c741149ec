package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"argus/config"
	"argus/domain/evidence"
	"argus/domain/order"
	"argus/infra/feed"
	"argus/infra/outbox"
	"argus/infra/staging"
	"argus/infra/store"
	"argus/jobs"
	"argus/jobs/broadcaster"
	"argus/matcher/semantic"
	"argus/matcher/temporal"
	"argus/merge"
	"argus/oracle"
	"argus/service"
	"argus/util"
)

func main() {
	var (
		dateFlag   = flag.String("date", time.Now().Format("2006-01-02"), "business date (YYYY-MM-DD)")
		ordersFlag = flag.String("orders", "", "path to the day's order rows (JSON array)")
		envFlag    = flag.String("env", "", "path to .env file")
	)
	flag.Parse()

	cfg := config.LoadFromEnv(*envFlag)

	date, err := time.Parse("2006-01-02", *dateFlag)
	if err != nil {
		log.Fatalf("bad -date: %v", err)
	}
	if *ordersFlag == "" {
		log.Fatal("-orders is required")
	}

	logger, err := buildLogger(cfg)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer logger.Sync()

	// ---------------- Durable Store ----------------

	st, err := store.Open(filepath.Join(cfg.Store.DataDir, "records"))
	if err != nil {
		logger.Fatal("record store init failed", zap.Error(err))
	}
	defer st.Close()

	stg, err := staging.New(cfg.Store.StagingDir)
	if err != nil {
		logger.Fatal("staging init failed", zap.Error(err))
	}

	ob, err := outbox.Open(filepath.Join(cfg.Store.DataDir, "outbox"))
	if err != nil {
		logger.Fatal("outbox init failed", zap.Error(err))
	}
	defer ob.Close()

	// ---------------- Authority Table ----------------

	auth, err := config.LoadAuthority(cfg.AuthorityFile)
	if err != nil {
		logger.Fatal("authority table load failed", zap.Error(err))
	}

	// ---------------- Oracle ----------------

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var oracleClient oracle.Client
	if cfg.Oracle.APIKey != "" {
		oracleClient, err = oracle.NewGemini(ctx, oracle.GeminiConfig{
			APIKey: cfg.Oracle.APIKey,
			Model:  cfg.Oracle.Model,
		})
		if err != nil {
			logger.Fatal("oracle init failed", zap.Error(err))
		}
	} else {
		logger.Warn("no oracle API key, semantic matching will degrade to deterministic fallback")
	}

	// ---------------- Matchers ----------------

	tm := temporal.New(temporal.DefaultConfig(), logger.Named("temporal"))

	semCfg := semantic.DefaultConfig()
	semCfg.PerfectThreshold = cfg.Matching.PerfectThreshold
	semCfg.Retry = oracle.RetryPolicy{
		Attempts: cfg.Oracle.Attempts,
		Timeout:  cfg.Oracle.Timeout,
		Backoff:  cfg.Oracle.Backoff,
	}
	sm := semantic.New(oracleClient, semCfg, logger.Named("semantic"))

	// ---------------- Service ----------------

	merger := merge.NewMerger(st, stg, auth, logger.Named("merge"))
	jobStore := jobs.NewStore()

	svc := service.New(
		&fileOrderSource{path: *ordersFlag},
		&feedEvidenceSource{cfg: cfg.Feed, log: logger.Named("feed")},
		tm,
		sm,
		merger,
		ob,
		jobStore,
		cfg.Matching.CallClusterGap,
		logger.Named("service"),
	)

	// ---------------- Background Jobs ----------------

	bc, err := broadcaster.New(ob, cfg.Feed.Brokers, cfg.Feed.EventsTopic, cfg.Feed.DrainInterval, logger.Named("broadcaster"))
	if err != nil {
		logger.Warn("broadcaster unavailable, record events stay queued", zap.Error(err))
	} else {
		bc.Start(ctx)
		defer bc.Close()
	}

	// ---------------- Run ----------------

	rep, err := svc.RunDay(ctx, date)
	if err != nil {
		logger.Fatal("day run failed", zap.Error(err))
	}

	out, _ := json.MarshalIndent(rep, "", "  ")
	fmt.Println(string(out))
}

func buildLogger(cfg config.Config) (*zap.Logger, error) {
	if cfg.LogFile != "" {
		return util.NewLoggerWithFile(cfg.LogFile)
	}
	return util.NewLogger()
}

// -------------------- Collaborator Adapters --------------------

// fileOrderSource reads the day's order rows from a JSON export.
// Order-book ingestion and parsing live upstream; this binary only
// consumes the result.
type fileOrderSource struct {
	path string
}

func (f *fileOrderSource) Orders(ctx context.Context, date time.Time) ([]order.Order, error) {
	raw, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("read orders: %w", err)
	}
	var rows []order.Order
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("decode orders: %w", err)
	}
	return rows, nil
}

// feedEvidenceSource drains the evidence topic for the run, with a
// bounded read window so an idle topic ends the collection.
type feedEvidenceSource struct {
	cfg config.Feed
	log *zap.Logger
}

func (f *feedEvidenceSource) Evidence(ctx context.Context, date time.Time) ([]evidence.Evidence, error) {
	r := feed.NewReader(f.cfg.Brokers, f.cfg.Topic, f.cfg.GroupID)
	defer r.Close()

	drainCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	evs, errs := r.Drain(drainCtx)
	for _, err := range errs {
		f.log.Warn("evidence message skipped", zap.Error(err))
	}
	return evs, nil
}
