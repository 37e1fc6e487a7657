// Package events defines the structured progress events emitted by the
// pipeline after every unit of work. The pipeline never renders UI itself;
// consumers (CLI, desktop frontends) subscribe via a ProgressFunc.
package events

import "time"

// EventType identifies what happened during a pipeline run.
type EventType string

const (
	// EventRunStarted indicates a pipeline run began for a project
	EventRunStarted EventType = "run_started"
	// EventRunCompleted indicates the run finished (possibly with per-item failures)
	EventRunCompleted EventType = "run_completed"
	// EventRunCancelled indicates cancellation was requested and honored between work items
	EventRunCancelled EventType = "run_cancelled"

	// EventStageStarted indicates a pipeline stage began
	EventStageStarted EventType = "stage_started"
	// EventStageCompleted indicates a pipeline stage finished
	EventStageCompleted EventType = "stage_completed"

	// EventClauseNeedChecked indicates NeedCheck produced a verdict for one clause
	EventClauseNeedChecked EventType = "clause_need_checked"
	// EventClausePlanned indicates AuditPlan generated tasks for one clause
	EventClausePlanned EventType = "clause_planned"
	// EventTaskSearched indicates Search populated evidence for one task
	EventTaskSearched EventType = "task_searched"
	// EventClauseJudged indicates Judge produced a final verdict for one clause
	EventClauseJudged EventType = "clause_judged"
	// EventClauseFailed indicates an unrecoverable per-clause stage error
	EventClauseFailed EventType = "clause_failed"
	// EventClauseSkipped indicates a clause was skipped (cached result or no procedure needed)
	EventClauseSkipped EventType = "clause_skipped"

	// EventDocumentIngested indicates a procedure document was read and chunked
	EventDocumentIngested EventType = "document_ingested"
	// EventDocumentFailed indicates a procedure document could not be ingested
	EventDocumentFailed EventType = "document_failed"
	// EventIndexBuilt indicates the vector index was (re)built for the corpus
	EventIndexBuilt EventType = "index_built"
	// EventIndexReused indicates the persisted index artifact was still valid
	EventIndexReused EventType = "index_reused"
)

// Severity is the severity level of an event.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Event is one progress notification. Stage, ClauseID and TaskID are set
// when applicable so a UI can render live per-item progress.
type Event struct {
	Type      EventType `json:"type"`
	Stage     string    `json:"stage,omitempty"`
	ClauseID  string    `json:"clause_id,omitempty"`
	TaskID    string    `json:"task_id,omitempty"`
	Document  string    `json:"document,omitempty"`
	Severity  Severity  `json:"severity"`
	Message   string    `json:"message"`
	Err       string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ProgressFunc receives events as the pipeline completes units of work.
// Implementations must be fast; long-running handlers stall the run.
type ProgressFunc func(Event)

// Discard is a ProgressFunc that drops all events.
func Discard(Event) {}

// Info builds an informational event.
func Info(t EventType, stage, message string) Event {
	return Event{Type: t, Stage: stage, Severity: SeverityInfo, Message: message, Timestamp: time.Now()}
}

// Failure builds an error event carrying err's message.
func Failure(t EventType, stage, message string, err error) Event {
	e := Event{Type: t, Stage: stage, Severity: SeverityError, Message: message, Timestamp: time.Now()}
	if err != nil {
		e.Err = err.Error()
	}
	return e
}

// WithClause returns a copy of the event tagged with a clause ID.
func (e Event) WithClause(id string) Event {
	e.ClauseID = id
	return e
}

// WithTask returns a copy of the event tagged with a task ID.
func (e Event) WithTask(id string) Event {
	e.TaskID = id
	return e
}
