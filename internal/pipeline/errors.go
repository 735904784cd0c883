package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/mirrorcast/mirrorcast/internal/assetstore"
	"github.com/mirrorcast/mirrorcast/pkg/provider/asr"
)

// Kind classifies a turn failure. The value is reported verbatim in the
// error event's "kind" field so clients can branch on it.
type Kind string

const (
	// KindInvalidInput covers malformed uploads and unsupported audio
	// formats.
	KindInvalidInput Kind = "invalid_input"

	// KindAdapterTimeout covers per-stage deadline expiry.
	KindAdapterTimeout Kind = "adapter_timeout"

	// KindAdapter covers inference backend failures other than timeouts.
	KindAdapter Kind = "adapter"

	// KindArtifactNotReady means a written artifact never reached a stable
	// size within budget.
	KindArtifactNotReady Kind = "artifact_not_ready"

	// KindStorage covers asset store write failures, including a full disk.
	KindStorage Kind = "storage"

	// KindClientDisconnect means the caller went away mid-turn. No error
	// event is emitted for this kind; there is nobody left to read it.
	KindClientDisconnect Kind = "client_disconnect"

	// KindInternal is the catch-all for everything else.
	KindInternal Kind = "internal"
)

// Error is a classified turn failure. Stage names the pipeline stage that
// failed ("asr", "llm", "tts", "lipsync", "store", "emit").
type Error struct {
	Kind  Kind
	Stage string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("pipeline: %s stage failed (%s): %v", e.Stage, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// classify wraps err with the taxonomy kind it maps to. Context
// cancellation means the client disconnected; a stage deadline shows up as
// context.DeadlineExceeded on the stage's child context.
func classify(stage string, err error) *Error {
	kind := KindAdapter
	switch {
	case errors.Is(err, context.Canceled):
		kind = KindClientDisconnect
	case errors.Is(err, context.DeadlineExceeded):
		kind = KindAdapterTimeout
	case errors.Is(err, asr.ErrUnsupportedFormat):
		kind = KindInvalidInput
	case errors.Is(err, assetstore.ErrNotStable):
		kind = KindArtifactNotReady
	case errors.Is(err, assetstore.ErrStorageFull), stage == "store":
		kind = KindStorage
	case stage == "emit":
		kind = KindClientDisconnect
	}
	return &Error{Kind: kind, Stage: stage, Err: err}
}
