// Package runner executes scrape runs: fetch and extract a target's pages,
// upsert every row, fire the per-record hooks, and finalize the Run row no
// matter how the attempt ends.
package runner

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/leadforge/leadforge/internal/classify"
	"github.com/leadforge/leadforge/internal/fetch"
	"github.com/leadforge/leadforge/internal/model"
	"github.com/leadforge/leadforge/internal/upsert"
)

// Store is the slice of the persistence layer the runner needs.
type Store interface {
	ListTargets(ctx context.Context, enabledOnly bool) ([]model.Target, error)
	TouchTargetLastRun(ctx context.Context, id string, at time.Time) error
	CreateRun(ctx context.Context, t *model.Target, trigger model.RunTrigger) (*model.Run, error)
	FinalizeRun(ctx context.Context, run *model.Run) error
}

// Hooks receives per-record events during a run. Implementations own the
// side effects (sync enqueue, spreadsheet append) so the runner has no
// compile-time dependency on either sink.
type Hooks interface {
	// RecordReady fires for every upserted record, created or updated.
	RecordReady(ctx context.Context, rec *model.Record)
	// RecordCreated fires only when the upsert created a new record.
	RecordCreated(ctx context.Context, rec *model.Record)
}

// NopHooks is a Hooks implementation that does nothing.
type NopHooks struct{}

func (NopHooks) RecordReady(context.Context, *model.Record)   {}
func (NopHooks) RecordCreated(context.Context, *model.Record) {}

// Runner executes runs for individual targets and sweeps across all of them.
type Runner struct {
	store  Store
	pager  *fetch.Pager
	engine *upsert.Engine
	hooks  Hooks
}

// New builds a runner. hooks may be nil.
func New(store Store, pager *fetch.Pager, engine *upsert.Engine, hooks Hooks) *Runner {
	if hooks == nil {
		hooks = NopHooks{}
	}
	return &Runner{store: store, pager: pager, engine: engine, hooks: hooks}
}

// RunTarget executes one scrape run. The Run row is finalized in a defer
// regardless of outcome. Contained failure categories (network, timeout,
// config) mark the run failed and return nil so sibling targets keep
// running; anything else propagates after the run is finalized.
func (r *Runner) RunTarget(ctx context.Context, t *model.Target, trigger model.RunTrigger) (run *model.Run, err error) {
	run, err = r.store.CreateRun(ctx, t, trigger)
	if err != nil {
		return nil, err
	}

	defer func() {
		now := time.Now().UTC()
		run.FinishedAt = &now
		run.Stats = map[string]int{
			"created": run.CreatedCount,
			"updated": run.UpdatedCount,
		}
		if err != nil {
			run.Status = model.RunFailed
			run.ErrorText = err.Error()
		} else {
			run.Status = model.RunSuccess
			if touchErr := r.store.TouchTargetLastRun(ctx, t.ID, now); touchErr != nil {
				zap.L().Error("touch target last run", zap.String("target", t.Name), zap.Error(touchErr))
			}
		}
		if finErr := r.store.FinalizeRun(ctx, run); finErr != nil {
			zap.L().Error("finalize run", zap.String("run_id", run.ID), zap.Error(finErr))
		}

		if err != nil {
			cat := classify.Classify(err)
			zap.L().Error("scrape run failed",
				zap.String("target", t.Name),
				zap.String("category", string(cat)),
				zap.Error(err))
			if classify.Contained(cat) {
				err = nil
			}
		}
	}()

	cfg, err := t.ParseConfig()
	if err != nil {
		return run, classify.NewConfigError(err)
	}

	rows, err := r.pager.Run(ctx, t, cfg)
	if err != nil {
		return run, err
	}
	run.ItemCount = len(rows)

	for _, row := range rows {
		rec, created, upErr := r.engine.UpsertRow(ctx, t, row)
		if upErr != nil {
			err = eris.Wrapf(upErr, "runner: upsert row for %s", t.Name)
			return run, err
		}
		if created {
			run.CreatedCount++
			r.hooks.RecordCreated(ctx, rec)
		} else {
			run.UpdatedCount++
		}
		r.hooks.RecordReady(ctx, rec)
	}

	zap.L().Info("scrape run finished",
		zap.String("target", t.Name),
		zap.Int("items", run.ItemCount),
		zap.Int("created", run.CreatedCount),
		zap.Int("updated", run.UpdatedCount))
	return run, nil
}

// ScrapeAll runs every enabled target. Targets run concurrently up to
// maxParallel; a contained failure in one target never stops the others.
func (r *Runner) ScrapeAll(ctx context.Context, trigger model.RunTrigger, maxParallel int) (int, error) {
	targets, err := r.store.ListTargets(ctx, true)
	if err != nil {
		return 0, eris.Wrap(err, "runner: list targets")
	}
	if maxParallel <= 0 {
		maxParallel = 4
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallel)
	for i := range targets {
		t := targets[i]
		g.Go(func() error {
			_, runErr := r.RunTarget(ctx, &t, trigger)
			return runErr
		})
	}
	if err := g.Wait(); err != nil {
		return len(targets), err
	}
	return len(targets), nil
}
