package main

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-engine/internal/config"
	"github.com/sells-group/lead-engine/internal/merge"
	"github.com/sells-group/lead-engine/internal/scorer"
	"github.com/sells-group/lead-engine/internal/store"
	"github.com/sells-group/lead-engine/internal/worker"
)

const poolDrainTimeout = 30 * time.Second

// initStore opens the configured store backend and applies its schema.
func initStore(ctx context.Context, c *config.Config) (store.Store, error) {
	var st store.Store
	switch c.Store.Driver {
	case "postgrest":
		rc := c.Store.PostgREST
		opts := []store.PostgRESTOption{store.WithRateLimit(rc.RateLimit)}
		if rc.TimeoutSecs > 0 {
			opts = append(opts, store.WithHTTPClient(&http.Client{Timeout: time.Duration(rc.TimeoutSecs) * time.Second}))
		}
		st = store.NewPostgREST(rc.URL, rc.Key, opts...)
	case "postgres":
		pg, err := store.NewPostgres(ctx, c.Store.DatabaseURL, nil)
		if err != nil {
			return nil, err
		}
		st = pg
	case "sqlite":
		sq, err := store.NewSQLite(c.Store.SQLitePath)
		if err != nil {
			return nil, err
		}
		st = sq
	default:
		return nil, eris.Errorf("unsupported store driver: %s", c.Store.Driver)
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// appEnv holds what the lead commands share.
type appEnv struct {
	Store  store.Store
	Scorer *scorer.Scorer
	Merger *merge.Merger
	Pool   *worker.Pool
}

func initEnv(ctx context.Context, c *config.Config, mode string) (*appEnv, error) {
	if err := c.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx, c)
	if err != nil {
		return nil, err
	}

	sc := scorer.New(c.Scoring)
	return &appEnv{
		Store:  st,
		Scorer: sc,
		Merger: merge.New(sc, merge.NewLinkGenerator(c.Meeting)),
		Pool:   worker.New(c.Worker.Concurrency, c.Worker.QueueSize),
	}, nil
}

// Close drains background work, then closes the store.
func (e *appEnv) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), poolDrainTimeout)
	defer cancel()
	if err := e.Pool.Close(ctx); err != nil {
		zap.L().Warn("worker pool did not drain", zap.Error(err))
	}
	succeeded, failed := e.Pool.Stats()
	zap.L().Debug("worker pool closed", zap.Int64("succeeded", succeeded), zap.Int64("failed", failed))
	if err := e.Store.Close(); err != nil {
		zap.L().Warn("close store", zap.Error(err))
	}
}
