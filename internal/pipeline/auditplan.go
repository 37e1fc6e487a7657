package pipeline

import (
	"context"
	"fmt"
	"strings"

	"regaudit/internal/ai"
	"regaudit/internal/cache"
	"regaudit/internal/events"
	"regaudit/internal/types"
)

// auditPlanResult is the cached payload of one clause decomposition.
type auditPlanResult struct {
	Tasks []string `json:"tasks"`
}

// runAuditPlan decomposes every need-checked clause into 1..MaxTasksPerClause
// searchable audit tasks. Tasks are persisted before Search starts so a
// crash between the stages re-enters at Search with the plan intact.
func (r *Runner) runAuditPlan(ctx context.Context) error {
	pick := func(c *types.Clause) bool {
		return c.State == types.StateNeedChecked && len(c.Tasks) == 0
	}
	return r.forEachClause(ctx, pick, r.planOne)
}

func (r *Runner) planOne(ctx context.Context, id string) error {
	clause := r.clauseCopy(id)
	if clause == nil {
		return nil
	}

	key := cache.Key(clause.Text, StageAuditPlan, r.settings.AuditPlanModel,
		fmt.Sprintf("max=%d", r.settings.MaxTasksPerClause))
	var result auditPlanResult
	if !r.cache.GetJSON(ctx, key, &result) {
		var err error
		result, err = r.decompose(ctx, clause)
		if err != nil {
			if isFatal(err) {
				return err
			}
			return r.failClause(StageAuditPlan, id, err)
		}
		if err := r.cache.PutJSON(ctx, key, r.settings.AuditPlanModel, result); err != nil {
			return fmt.Errorf("%w: %v", types.ErrPersistence, err)
		}
	}

	tasks := make([]*types.AuditTask, len(result.Tasks))
	for i, sentence := range result.Tasks {
		// Deterministic IDs: regenerating a plan from cache yields the same
		// task identities, keeping downstream cache keys stable.
		tasks[i] = &types.AuditTask{
			ID:       fmt.Sprintf("%s-T%d", clause.ID, i+1),
			Sentence: sentence,
		}
	}
	if err := r.store.UpdateClause(id, func(c *types.Clause) {
		c.Tasks = tasks
		c.State = types.StatePlanned
		c.Error = ""
	}); err != nil {
		return err
	}

	r.progress(events.Info(events.EventClausePlanned, StageAuditPlan,
		fmt.Sprintf("%d audit tasks", len(tasks))).WithClause(id))
	return nil
}

// decompose calls the model, re-prompting once when the plan is malformed,
// empty, or oversized.
func (r *Runner) decompose(ctx context.Context, clause *types.Clause) (auditPlanResult, error) {
	prompt := auditPlanPrompt(clause, r.settings.MaxTasksPerClause)

	raw, err := r.llm.Complete(ctx, r.settings.AuditPlanModel, prompt, 2048)
	if err != nil {
		return auditPlanResult{}, err
	}
	result, perr := ai.Parse[auditPlanResult](raw)
	if perr == nil {
		perr = r.validatePlan(result)
	}
	if perr == nil {
		return result, nil
	}

	strict := prompt + strictJSONReminder + fmt.Sprintf(
		"\nThe plan MUST contain between 1 and %d tasks.", r.settings.MaxTasksPerClause)
	raw, err = r.llm.Complete(ctx, r.settings.AuditPlanModel, strict, 2048)
	if err != nil {
		return auditPlanResult{}, err
	}
	result, perr = ai.Parse[auditPlanResult](raw)
	if perr != nil {
		return auditPlanResult{}, perr
	}
	if err := r.validatePlan(result); err != nil {
		return auditPlanResult{}, err
	}
	return result, nil
}

func (r *Runner) validatePlan(p auditPlanResult) error {
	if len(p.Tasks) == 0 {
		return fmt.Errorf("%w: plan contains no tasks", types.ErrParse)
	}
	if len(p.Tasks) > r.settings.MaxTasksPerClause {
		return fmt.Errorf("%w: plan has %d tasks, limit is %d",
			types.ErrParse, len(p.Tasks), r.settings.MaxTasksPerClause)
	}
	for i, s := range p.Tasks {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%w: task %d is empty", types.ErrParse, i+1)
		}
	}
	return nil
}
