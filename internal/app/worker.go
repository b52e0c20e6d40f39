package app

import (
	"context"
	"errors"

	"github.com/yungbote/knowtree-backend/internal/temporalx/ingestwf"
	"github.com/yungbote/knowtree-backend/internal/temporalx/temporalworker"
)

var ErrTemporalDisabled = errors.New("TEMPORAL_ADDRESS not set")

// RunWorker polls the ingest task queue until ctx is done.
func (a *App) RunWorker(ctx context.Context) error {
	if a.Temporal == nil {
		return ErrTemporalDisabled
	}
	if err := a.Start(ctx); err != nil {
		return err
	}
	runner, err := temporalworker.NewRunner(a.Log, a.Temporal, &ingestwf.Activities{
		Log:    a.Log,
		Ingest: a.Ingest,
		Events: a.Events,
	})
	if err != nil {
		return err
	}
	if err := runner.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}
