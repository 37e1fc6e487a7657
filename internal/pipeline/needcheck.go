package pipeline

import (
	"context"
	"errors"
	"fmt"

	"regaudit/internal/ai"
	"regaudit/internal/cache"
	"regaudit/internal/events"
	"regaudit/internal/runstate"
	"regaudit/internal/types"
)

// needCheckResult is the cached payload of one NeedCheck classification.
type needCheckResult struct {
	NeedsProcedure bool   `json:"needs_procedure"`
	Reason         string `json:"reason,omitempty"`
}

// runNeedCheck classifies every pending clause: does it obligate the
// organization to have an internal procedure at all? Clauses that don't
// are terminally skipped and never planned, searched, or judged. Clauses
// that failed a previous run restart here.
func (r *Runner) runNeedCheck(ctx context.Context) error {
	pick := func(c *types.Clause) bool {
		return c.State == types.StatePending || c.State == types.StateFailed
	}
	return r.forEachClause(ctx, pick, r.needCheckOne)
}

func (r *Runner) needCheckOne(ctx context.Context, id string) error {
	clause := r.clauseCopy(id)
	if clause == nil {
		return nil
	}

	key := cache.Key(clause.Text, StageNeedCheck, r.settings.NeedCheckModel)
	var result needCheckResult
	if !r.cache.GetJSON(ctx, key, &result) {
		var err error
		result, err = r.classifyNeed(ctx, clause)
		if err != nil {
			if isFatal(err) {
				return err
			}
			return r.failClause(StageNeedCheck, id, err)
		}
		if err := r.cache.PutJSON(ctx, key, r.settings.NeedCheckModel, result); err != nil {
			return fmt.Errorf("%w: %v", types.ErrPersistence, err)
		}
	}

	err := r.store.UpdateClause(id, func(c *types.Clause) {
		// A clause re-entering from failed restarts from scratch; stale
		// plan or verdict data must not short-circuit later stages.
		if c.State == types.StateFailed {
			c.Tasks = nil
			c.Verdict = nil
		}
		needs := result.NeedsProcedure
		c.NeedsProcedure = &needs
		c.Error = ""
		if needs {
			c.State = types.StateNeedChecked
		} else {
			c.State = types.StateSkipped
		}
	})
	if err != nil {
		return err
	}

	if result.NeedsProcedure {
		r.progress(events.Info(events.EventClauseNeedChecked, StageNeedCheck,
			"procedure required: "+result.Reason).WithClause(id))
	} else {
		r.progress(events.Info(events.EventClauseSkipped, StageNeedCheck,
			"no procedure required: "+result.Reason).WithClause(id))
	}
	return nil
}

// classifyNeed calls the model, retrying once with a stricter prompt when
// the first response doesn't parse.
func (r *Runner) classifyNeed(ctx context.Context, clause *types.Clause) (needCheckResult, error) {
	prompt := needCheckPrompt(clause)
	raw, err := r.llm.Complete(ctx, r.settings.NeedCheckModel, prompt, 512)
	if err != nil {
		return needCheckResult{}, err
	}
	result, perr := ai.Parse[needCheckResult](raw)
	if perr == nil {
		return result, nil
	}

	raw, err = r.llm.Complete(ctx, r.settings.NeedCheckModel, prompt+strictJSONReminder, 512)
	if err != nil {
		return needCheckResult{}, err
	}
	return ai.Parse[needCheckResult](raw)
}

// clauseCopy returns a detached copy of one clause for read-only use.
func (r *Runner) clauseCopy(id string) *types.Clause {
	var out *types.Clause
	r.store.State(func(st *runstate.RunState) {
		if c, ok := st.Clauses[id]; ok {
			cp := *c
			out = &cp
		}
	})
	return out
}

// isFatal reports whether an error must abort the whole run instead of
// being recorded on the failing item.
func isFatal(err error) bool {
	return errors.Is(err, types.ErrPersistence) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
