package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"regaudit/internal/ai"
	"regaudit/internal/cache"
	"regaudit/internal/events"
	"regaudit/internal/types"
)

// judgeTaskResult is the cached payload of one per-task assessment.
type judgeTaskResult struct {
	Compliant  bool    `json:"compliant"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
	Suggestion string  `json:"suggestion,omitempty"`
}

// runJudge renders the final verdict for every searched clause. A clause
// with zero evidence across all of its tasks gets a NoEvidence verdict
// without any model call; otherwise each task is assessed against its own
// evidence and the clause verdict follows the aggregation rule: any gap
// wins, full support is compliant, anything else is inconclusive.
func (r *Runner) runJudge(ctx context.Context) error {
	pick := func(c *types.Clause) bool {
		return c.State == types.StateSearched && c.Verdict == nil
	}
	return r.forEachClause(ctx, pick, r.judgeOne)
}

func (r *Runner) judgeOne(ctx context.Context, id string) error {
	clause := r.clauseCopy(id)
	if clause == nil {
		return nil
	}

	if countEvidence(clause) == 0 {
		verdict := &types.Verdict{
			Status:      types.VerdictNoEvidence,
			Confidence:  0,
			Description: "No procedure content matched any audit task for this clause.",
			Suggestions: "Document a procedure covering this clause; none of the existing documents address it.",
			JudgedAt:    time.Now().UTC(),
		}
		if err := r.store.UpdateClause(id, func(c *types.Clause) {
			c.Verdict = verdict
			c.State = types.StateJudged
			c.Error = ""
		}); err != nil {
			return err
		}
		r.progress(events.Info(events.EventClauseJudged, StageJudge,
			string(types.VerdictNoEvidence)).WithClause(id))
		return nil
	}

	judgments := make(map[string]judgeTaskResult, len(clause.Tasks))
	for _, task := range clause.Tasks {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// Tasks with no evidence of their own are not sent to the model:
		// there is nothing to assess, and the aggregation treats them as
		// unsupported unless a harder gap exists elsewhere.
		if len(task.TopK) == 0 {
			continue
		}
		result, err := r.judgeTask(ctx, clause, task)
		if err != nil {
			if isFatal(err) {
				return err
			}
			return r.failClause(StageJudge, id, err)
		}
		judgments[task.ID] = result
	}

	verdict := aggregateVerdict(clause, judgments)
	if err := r.store.UpdateClause(id, func(c *types.Clause) {
		for _, task := range c.Tasks {
			if res, ok := judgments[task.ID]; ok {
				compliant := res.Compliant
				task.Compliant = &compliant
				task.Reasoning = res.Reasoning
			}
		}
		c.Verdict = verdict
		c.State = types.StateJudged
		c.Error = ""
	}); err != nil {
		return err
	}

	r.progress(events.Info(events.EventClauseJudged, StageJudge,
		string(verdict.Status)).WithClause(id))
	return nil
}

// judgeTask assesses one task against its retrieved evidence, with a
// write-through cache keyed on everything the judgment depends on: the
// clause text, the task sentence, the exact evidence chunks, and the model.
func (r *Runner) judgeTask(ctx context.Context, clause *types.Clause, task *types.AuditTask) (judgeTaskResult, error) {
	keyParts := []string{clause.Text, task.Sentence, StageJudge, r.settings.JudgeModel}
	for _, m := range task.TopK {
		keyParts = append(keyParts, m.ChunkHash)
	}
	key := cache.Key(keyParts...)

	var result judgeTaskResult
	if r.cache.GetJSON(ctx, key, &result) {
		return result, nil
	}

	prompt := judgeTaskPrompt(clause, task)
	raw, err := r.llm.Complete(ctx, r.settings.JudgeModel, prompt, 1024)
	if err != nil {
		return judgeTaskResult{}, err
	}
	result, perr := ai.Parse[judgeTaskResult](raw)
	if perr != nil {
		raw, err = r.llm.Complete(ctx, r.settings.JudgeModel, prompt+strictJSONReminder, 1024)
		if err != nil {
			return judgeTaskResult{}, err
		}
		if result, perr = ai.Parse[judgeTaskResult](raw); perr != nil {
			return judgeTaskResult{}, perr
		}
	}

	if err := r.cache.PutJSON(ctx, key, r.settings.JudgeModel, result); err != nil {
		return judgeTaskResult{}, fmt.Errorf("%w: %v", types.ErrPersistence, err)
	}
	return result, nil
}

// aggregateVerdict folds per-task judgments into the clause verdict.
// Precedence: any demonstrated gap makes the clause non-compliant even
// when other tasks found nothing at all; only a fully supported clause is
// compliant; mixed or missing coverage is inconclusive.
func aggregateVerdict(clause *types.Clause, judgments map[string]judgeTaskResult) *types.Verdict {
	var (
		gaps        []string
		supported   int
		uncovered   int
		suggestions []string
		confidence  float64
	)
	for _, task := range clause.Tasks {
		res, ok := judgments[task.ID]
		if !ok {
			uncovered++
			suggestions = append(suggestions,
				fmt.Sprintf("No procedure content found for: %s", task.Sentence))
			continue
		}
		confidence += res.Confidence
		if res.Compliant {
			supported++
		} else {
			gaps = append(gaps, fmt.Sprintf("%s: %s", task.ID, res.Reasoning))
			if res.Suggestion != "" {
				suggestions = append(suggestions, res.Suggestion)
			}
		}
	}
	if len(judgments) > 0 {
		confidence /= float64(len(judgments))
	}

	v := &types.Verdict{
		Confidence:  confidence,
		Suggestions: strings.Join(dedupe(suggestions), "\n"),
		JudgedAt:    time.Now().UTC(),
	}
	switch {
	case len(gaps) > 0:
		v.Status = types.VerdictNonCompliant
		v.Description = fmt.Sprintf("%d of %d audit tasks are not satisfied by the procedures:\n%s",
			len(gaps)+uncovered, len(clause.Tasks), strings.Join(gaps, "\n"))
	case uncovered == 0 && supported == len(clause.Tasks):
		v.Status = types.VerdictCompliant
		v.Description = fmt.Sprintf("All %d audit tasks are satisfied by the procedures.", len(clause.Tasks))
	default:
		v.Status = types.VerdictInconclusive
		v.Description = fmt.Sprintf("%d of %d audit tasks are supported; %d found no matching procedure content.",
			supported, len(clause.Tasks), uncovered)
	}
	return v
}

// countEvidence returns the number of distinct evidence chunks across all
// tasks of a clause.
func countEvidence(clause *types.Clause) int {
	refs := map[string]bool{}
	for _, task := range clause.Tasks {
		for _, m := range task.TopK {
			refs[m.Ref()] = true
		}
	}
	return len(refs)
}

func dedupe(in []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
