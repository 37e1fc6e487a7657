package types

import "errors"

// Error taxonomy for the pipeline. Item-level failures (one clause, one
// task, one document) are recorded in the item's state and never abort
// sibling items; only storage-layer failures abort the whole run.
var (
	// ErrIngestion marks an unreadable or unsupported input document.
	ErrIngestion = errors.New("ingestion failed")

	// ErrProvider marks an LLM or embedding call failure after retries.
	ErrProvider = errors.New("provider call failed")

	// ErrParse marks structurally malformed LLM output after the
	// corrective re-prompt.
	ErrParse = errors.New("malformed model output")

	// ErrInvalidation marks a cache/index inconsistency. Handled
	// conservatively by forcing a rebuild rather than trusting stale data.
	ErrInvalidation = errors.New("index inconsistent with corpus")

	// ErrPersistence marks a run-state write failure. Fatal for the
	// current run; previously flushed state remains intact on disk.
	ErrPersistence = errors.New("run state write failed")
)
