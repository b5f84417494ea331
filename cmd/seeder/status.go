package main

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/couchcryptid/storm-data-seeder/internal/adapter/httpadapter"
	"github.com/couchcryptid/storm-data-seeder/internal/pipeline"
)

// runStatus tracks the stage of the driver currently running so /readyz can
// report it from the server goroutine.
type runStatus struct {
	stage atomic.Int32
}

func (r *runStatus) observe(s pipeline.Stage) {
	r.stage.Store(int32(s))
}

// CheckReadiness reports ready while a driver is between idle and done.
func (r *runStatus) CheckReadiness(_ context.Context) error {
	switch s := pipeline.Stage(r.stage.Load()); s {
	case pipeline.StageReading, pipeline.StageUploading, pipeline.StageVerifying:
		return nil
	default:
		return fmt.Errorf("pipeline %s", s)
	}
}

// startStatusServer serves health and metrics on METRICS_ADDR for the
// duration of a seed command. The returned func stops it.
func (a *app) startStatusServer() (func(), error) {
	if a.cfg.MetricsAddr == "" {
		return func() {}, nil
	}

	srv := httpadapter.NewServer(a.cfg.MetricsAddr, &a.status, a.metrics.Gatherer(), a.logger)
	if err := srv.Start(); err != nil {
		return nil, fmt.Errorf("start status server: %w", err)
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			a.logger.Error("status server shutdown error", "error", err)
		}
	}, nil
}
