package agent

import (
	"errors"

	"github.com/archielabs/archie/internal/backend"
	"github.com/archielabs/archie/internal/persona"
	"github.com/archielabs/archie/internal/reason"
)

// The pipeline surfaces a small, stable error set. Callers match with
// errors.Is; the aliases keep the underlying package sentinels out of
// caller code.
var (
	// ErrPersonaNotFound means the requested persona key is not registered.
	// Detected before any model call is made.
	ErrPersonaNotFound = persona.ErrNotFound

	// ErrBackendUnavailable means the conversation backend rejected or
	// never answered a request.
	ErrBackendUnavailable = backend.ErrUnavailable

	// ErrModelUnavailable means the model could not be reached after all
	// transport retries.
	ErrModelUnavailable = reason.ErrModelUnavailable

	// ErrReasoningSchema means the model never produced output matching
	// the response schema.
	ErrReasoningSchema = reason.ErrSchemaInvalid

	// ErrToolLoopExceeded means the model asked for tools after its single
	// dispatch round was already spent.
	ErrToolLoopExceeded = reason.ErrToolLoopExceeded

	// ErrBackendSyncFailed marks a response that could not be persisted to
	// the backend. Reported as a response warning, never as a failure.
	ErrBackendSyncFailed = errors.New("backend sync failed")
)
