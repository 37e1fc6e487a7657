package pipeline

import (
	"fmt"
	"strings"

	"regaudit/internal/types"
)

// strictJSONReminder is appended on the corrective re-prompt after a parse
// failure.
const strictJSONReminder = "\n\nIMPORTANT: Respond with ONLY the JSON object. No markdown fences, no commentary, no text before or after."

func needCheckPrompt(c *types.Clause) string {
	return fmt.Sprintf(`You are a compliance analyst. Decide whether the following regulatory clause requires the organization to have an internal procedure, process, or documented control to satisfy it.

Clauses that merely define terms, state scope, or impose no organizational obligation do not require a procedure.

Clause %s%s:
%s

Respond with JSON:
{"needs_procedure": true or false, "reason": "one sentence"}`,
		c.ID, titleSuffix(c), c.Text)
}

func auditPlanPrompt(c *types.Clause, maxTasks int) string {
	return fmt.Sprintf(`You are a compliance auditor. Decompose the following regulatory clause into concrete audit tasks. Each task is ONE self-contained declarative sentence describing something the organization's internal procedures must contain or provide, phrased so it can be used as a search query against the procedure documents.

Produce between 1 and %d tasks. Do not invent requirements that are not in the clause.

Clause %s%s:
%s

Respond with JSON:
{"tasks": ["sentence 1", "sentence 2", ...]}`,
		maxTasks, c.ID, titleSuffix(c), c.Text)
}

func judgeTaskPrompt(c *types.Clause, task *types.AuditTask) string {
	var evidence strings.Builder
	for i, m := range task.TopK {
		fmt.Fprintf(&evidence, "[%d] (%s, score %.3f)\n%s\n\n", i+1, m.Ref(), m.Score, m.Excerpt)
	}

	return fmt.Sprintf(`You are a compliance auditor. Decide whether the retrieved procedure excerpts satisfy the audit requirement below. Judge ONLY from the excerpts; do not assume unstated controls exist.

Regulatory clause %s%s:
%s

Audit requirement:
%s

Retrieved procedure excerpts:
%s
Respond with JSON:
{"compliant": true or false, "confidence": 0.0 to 1.0, "reasoning": "short explanation citing excerpt numbers", "suggestion": "what to add or change if not compliant, else empty string"}`,
		c.ID, titleSuffix(c), c.Text, task.Sentence, evidence.String())
}

func titleSuffix(c *types.Clause) string {
	if c.Title == "" {
		return ""
	}
	return " (" + c.Title + ")"
}
