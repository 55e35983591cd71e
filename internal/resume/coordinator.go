package resume

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/casualjim/streamgate/internal/store"
	"github.com/casualjim/streamgate/messages"
	"github.com/casualjim/streamgate/pkg/slogx"
	"github.com/casualjim/streamgate/pkg/uuidx"
)

const (
	continueInstruction = "Continue your previous response exactly where it stopped. " +
		"Do not repeat any text you already wrote, and do not start with an ellipsis or any other continuation marker."
	completeWordInstruction = " Your previous response was cut off in the middle of a word or sentence: " +
		"first finish that word or clause, then keep going."
)

// Request is what the coordinator needs from an incoming call.
type Request struct {
	StreamID       string
	Resume         bool
	PartialContent string
	Messages       []messages.Message
}

// Plan is the effective request to run.
type Plan struct {
	StreamID string
	// Messages is the conversation to send upstream.
	Messages []messages.Message
	// PreviousContent is the text that was already produced, empty for fresh streams.
	PreviousContent string
	// Session is the stored session for StreamID, nil when none was found.
	Session *store.Session
	// Resumed is true when PreviousContent is not empty.
	Resumed bool
}

// Coordinator prepares requests against a session store.
type Coordinator struct {
	store store.Store
}

// New creates a coordinator reading prior state from s.
func New(s store.Store) *Coordinator {
	return &Coordinator{store: s}
}

// Prepare builds the plan for req. Store failures are logged and treated as
// missing state; the only error returned is the context's.
func (c *Coordinator) Prepare(ctx context.Context, req Request) (Plan, error) {
	if err := ctx.Err(); err != nil {
		return Plan{}, err
	}

	plan := Plan{StreamID: req.StreamID}
	if !req.Resume || plan.StreamID == "" {
		plan.StreamID = uuidx.NewString()
	}

	if req.Resume && req.StreamID != "" {
		session, err := c.store.Get(ctx, req.StreamID)
		switch {
		case err == nil:
			plan.Session = session
		case errors.Is(err, store.ErrNotFound):
		case ctx.Err() != nil:
			return Plan{}, ctx.Err()
		default:
			slog.WarnContext(ctx, "failed to load stream state, starting over",
				slogx.Error(err), slogx.StreamID(req.StreamID), slogx.LoggerName("resume"))
		}
	}

	if req.Resume {
		plan.PreviousContent = previousContent(ctx, req.PartialContent, plan.Session)
	}

	if plan.PreviousContent == "" {
		plan.Messages = messages.Extend(req.Messages)
		return plan, nil
	}

	plan.Resumed = true
	plan.Messages = messages.Extend(req.Messages,
		messages.Assistant(plan.PreviousContent),
		messages.User(ContinuationInstruction(plan.PreviousContent)),
	)
	return plan, nil
}

// previousContent reconciles the client's hint with the stored text. The store
// is only ever extended, so a hint wins only when it extends the stored text.
// A hint that is a prefix of the stored text means the client missed some
// output; a hint that disagrees is ignored.
func previousContent(ctx context.Context, hint string, session *store.Session) string {
	if session == nil {
		return hint
	}
	stored := session.Text
	switch {
	case hint == "", strings.HasPrefix(stored, hint):
		return stored
	case strings.HasPrefix(hint, stored):
		return hint
	default:
		slog.WarnContext(ctx, "resume hint disagrees with stored text, replaying stored text",
			slogx.StreamID(session.ID), slog.Int("hint", len(hint)), slog.Int("stored", len(stored)),
			slogx.LoggerName("resume"))
		return stored
	}
}

// ContinuationInstruction returns the user turn asking the model to continue previous.
func ContinuationInstruction(previous string) string {
	if NeedsWordCompletion(previous) {
		return continueInstruction + completeWordInstruction
	}
	return continueInstruction
}

// NeedsWordCompletion reports whether text stops mid-word or mid-clause: it does
// not end in whitespace and does not end in '.', '!' or '?'.
func NeedsWordCompletion(text string) bool {
	last, size := utf8.DecodeLastRuneInString(text)
	if size == 0 {
		return false
	}
	if unicode.IsSpace(last) {
		return false
	}
	switch last {
	case '.', '!', '?':
		return false
	}
	return true
}
