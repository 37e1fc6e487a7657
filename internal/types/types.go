package types

import (
	"fmt"
	"strings"
	"time"
)

// Clause represents one atomic requirement extracted from an external
// regulation document. It is the unit of work the pipeline advances through
// the per-clause state machine.
type Clause struct {
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`
	Text  string `json:"text"`

	// NeedsProcedure is nil until the NeedCheck stage has produced a
	// verdict. A nil value after NeedCheck means the stage failed for this
	// clause and the Error field carries the reason.
	NeedsProcedure *bool `json:"needs_procedure,omitempty"`

	Tasks []*AuditTask `json:"tasks,omitempty"`

	State   ClauseState `json:"state"`
	Verdict *Verdict    `json:"verdict,omitempty"`

	// Error holds the most recent per-clause failure. It never aborts
	// sibling clauses.
	Error string `json:"error,omitempty"`

	Metadata map[string]string `json:"metadata,omitempty"`
}

// Validate checks if the clause has valid field values
func (c *Clause) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("clause id is required")
	}
	if strings.TrimSpace(c.Text) == "" {
		return fmt.Errorf("clause %s: text is required", c.ID)
	}
	if !c.State.IsValid() {
		return fmt.Errorf("clause %s: invalid state: %s", c.ID, c.State)
	}
	return nil
}

// TaskByID returns the clause's task with the given ID, or nil.
func (c *Clause) TaskByID(id string) *AuditTask {
	for _, t := range c.Tasks {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// AuditTask is a concrete, searchable sub-question derived from a clause by
// the AuditPlan stage. A task belongs to exactly one clause.
type AuditTask struct {
	ID       string `json:"id"`
	Sentence string `json:"sentence"`

	// TopK holds the retrieved evidence, ordered by descending similarity.
	TopK []MatchResult `json:"top_k,omitempty"`

	// Compliant is nil until the Judge stage has assessed this task.
	Compliant *bool  `json:"compliant,omitempty"`
	Reasoning string `json:"reasoning,omitempty"`
	Error     string `json:"error,omitempty"`
}

// MatchResult references a procedure chunk by corpus handle rather than by
// pointer so that run state serializes cleanly and chunk lifetimes stay with
// the index that produced them.
type MatchResult struct {
	SourceFile  string  `json:"source_file"`
	ChunkIndex  int     `json:"chunk_index"`
	ChunkHash   string  `json:"chunk_hash"`
	Excerpt     string  `json:"excerpt"`
	StartOffset int     `json:"start_offset"`
	EndOffset   int     `json:"end_offset"`
	Score       float64 `json:"score"`
}

// Ref returns a stable identity for deduplicating overlapping evidence
// across a clause's tasks.
func (m MatchResult) Ref() string {
	return fmt.Sprintf("%s#%d", m.SourceFile, m.ChunkIndex)
}

// Verdict is the final per-clause compliance judgment.
type Verdict struct {
	Status      VerdictStatus `json:"status"`
	Confidence  float64       `json:"confidence"`
	Description string        `json:"description"`
	Suggestions string        `json:"suggestions,omitempty"`
	JudgedAt    time.Time     `json:"judged_at"`
}

// VerdictStatus is the outcome of judging a clause.
type VerdictStatus string

const (
	VerdictCompliant    VerdictStatus = "compliant"
	VerdictNonCompliant VerdictStatus = "non_compliant"
	VerdictInconclusive VerdictStatus = "inconclusive"
	// VerdictNoEvidence is assigned without an LLM call when every task of a
	// clause retrieved zero matches.
	VerdictNoEvidence VerdictStatus = "no_evidence"
)

// IsValid checks if the verdict status value is valid
func (s VerdictStatus) IsValid() bool {
	switch s {
	case VerdictCompliant, VerdictNonCompliant, VerdictInconclusive, VerdictNoEvidence:
		return true
	}
	return false
}

// ClauseState tracks a clause's progress through the pipeline.
//
// Transitions: pending → need_checked → {skipped | planned} → searched →
// judged. failed is reachable from any state on unrecoverable stage error;
// it is terminal for the current run but retried from scratch on the next
// invocation because a failed item carries no valid cache key.
type ClauseState string

const (
	StatePending     ClauseState = "pending"
	StateNeedChecked ClauseState = "need_checked"
	// StateSkipped means NeedCheck decided no procedure is required.
	StateSkipped  ClauseState = "skipped"
	StatePlanned  ClauseState = "planned"
	StateSearched ClauseState = "searched"
	StateJudged   ClauseState = "judged"
	StateFailed   ClauseState = "failed"
)

// IsValid checks if the clause state value is valid
func (s ClauseState) IsValid() bool {
	switch s {
	case StatePending, StateNeedChecked, StateSkipped, StatePlanned,
		StateSearched, StateJudged, StateFailed:
		return true
	}
	return false
}

// Terminal reports whether the state ends processing for the current run.
func (s ClauseState) Terminal() bool {
	return s == StateSkipped || s == StateJudged || s == StateFailed
}
