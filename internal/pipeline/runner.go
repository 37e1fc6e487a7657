// Package pipeline orchestrates the four audit stages: NeedCheck decides
// which clauses require a procedure, AuditPlan decomposes them into
// searchable tasks, Search retrieves supporting evidence from the procedure
// corpus, and Judge renders the per-clause compliance verdict. Every unit
// of work is cached by content and persisted to the run document before the
// next one starts, so runs are idempotent and crash-resumable.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"regaudit/internal/ai"
	"regaudit/internal/cache"
	"regaudit/internal/config"
	"regaudit/internal/events"
	"regaudit/internal/ingest"
	"regaudit/internal/project"
	"regaudit/internal/runstate"
	"regaudit/internal/types"
)

// Stage names as they appear in events and error messages.
const (
	StageNeedCheck = "need_check"
	StageAuditPlan = "audit_plan"
	StageSearch    = "search"
	StageJudge     = "judge"
)

// Runner executes the pipeline for one project. Construct with New; the
// zero value is not usable.
type Runner struct {
	project  project.Project
	store    *runstate.Store
	cache    *cache.ContentCache
	llm      ai.LLMService
	embedder ai.EmbeddingService
	settings config.Settings
	progress events.ProgressFunc
}

// New wires a Runner. progress may be nil.
func New(p project.Project, store *runstate.Store, c *cache.ContentCache,
	llm ai.LLMService, embedder ai.EmbeddingService,
	settings config.Settings, progress events.ProgressFunc) (*Runner, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if progress == nil {
		progress = events.Discard
	}
	return &Runner{
		project:  p,
		store:    store,
		cache:    c,
		llm:      llm,
		embedder: embedder,
		settings: settings,
		progress: progress,
	}, nil
}

// Run executes all stages in order. Cancellation is honored between work
// items: in-flight provider calls finish, not-yet-started items are left
// untouched for the next run. The returned error is nil when the run
// completed, even if individual clauses failed; per-item failures live in
// the run state.
func (r *Runner) Run(ctx context.Context) error {
	runID := uuid.NewString()
	r.progress(events.Info(events.EventRunStarted, "",
		fmt.Sprintf("run %s for project %s", runID, r.project.Name)))

	clauses, err := ingest.LoadClauses(r.project.RegulationFile)
	if err != nil {
		return err
	}
	if err := r.store.Update(func(st *runstate.RunState) {
		st.Merge(clauses)
	}); err != nil {
		return err
	}

	stages := []struct {
		name string
		fn   func(context.Context) error
	}{
		{StageNeedCheck, r.runNeedCheck},
		{StageAuditPlan, r.runAuditPlan},
		{StageSearch, r.runSearch},
		{StageJudge, r.runJudge},
	}
	for _, stage := range stages {
		if ctx.Err() != nil {
			r.progress(events.Info(events.EventRunCancelled, stage.name, "cancelled between stages"))
			return ctx.Err()
		}
		r.progress(events.Info(events.EventStageStarted, stage.name, "stage started"))
		if err := stage.fn(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				r.progress(events.Info(events.EventRunCancelled, stage.name, "cancelled during stage"))
				return err
			}
			return fmt.Errorf("%s stage: %w", stage.name, err)
		}
		r.progress(events.Info(events.EventStageCompleted, stage.name, "stage completed"))
	}

	r.progress(events.Info(events.EventRunCompleted, "", r.summaryLine()))
	return nil
}

// forEachClause runs fn concurrently over the clauses selected by pick,
// bounded by the worker limit. Cancellation is checked before each item;
// fn errors abort the pool only for persistence failures, everything else
// is recorded on the clause by fn itself.
func (r *Runner) forEachClause(ctx context.Context, pick func(*types.Clause) bool,
	fn func(context.Context, string) error) error {

	var ids []string
	r.store.State(func(st *runstate.RunState) {
		for _, id := range st.ClauseIDs() {
			if pick(st.Clauses[id]) {
				ids = append(ids, id)
			}
		}
	})

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.settings.MaxWorkers)
	for _, id := range ids {
		if gctx.Err() != nil {
			break
		}
		id := id
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			return fn(gctx, id)
		})
	}
	return g.Wait()
}

// failClause records a per-clause failure and flushes state. The clause is
// retried from its previous position on the next run.
func (r *Runner) failClause(stage, id string, cause error) error {
	err := r.store.UpdateClause(id, func(c *types.Clause) {
		c.State = types.StateFailed
		c.Error = cause.Error()
	})
	r.progress(events.Failure(events.EventClauseFailed, stage, "clause failed", cause).WithClause(id))
	return err
}

func (r *Runner) summaryLine() string {
	var line string
	r.store.State(func(st *runstate.RunState) {
		s := st.Summary()
		line = fmt.Sprintf("judged=%d skipped=%d failed=%d total=%d",
			s[types.StateJudged], s[types.StateSkipped], s[types.StateFailed], len(st.Clauses))
	})
	return line
}
