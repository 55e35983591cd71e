package fallback

import (
	"context"
	"errors"
	"log/slog"

	"github.com/casualjim/streamgate/pkg/slogx"
	"github.com/casualjim/streamgate/provider"
	"github.com/fogfish/opts"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/casualjim/streamgate/internal/fallback"

var (
	attrModel      = attribute.Key("streamgate.model")
	attrAttempt    = attribute.Key("streamgate.attempt")
	attrErrorClass = attribute.Key("streamgate.error_class")
)

// Candidates returns preferred followed by defaults, without empty names or duplicates.
func Candidates(preferred string, defaults []string) []string {
	out := make([]string, 0, len(defaults)+1)
	seen := make(map[string]struct{}, len(defaults)+1)
	for _, name := range append([]string{preferred}, defaults...) {
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

// Request is one run of the chain.
type Request struct {
	// Candidates in priority order, see Candidates.
	Candidates []string
	// Params for every attempt; Model is replaced with the candidate's name.
	Params provider.CompletionParams
}

// Result describes the winning candidate.
type Result struct {
	Model    string
	Attempts int
	// Events replays what the winner produced before it was selected, then
	// forwards the rest of its stream. It is closed when the winner is done.
	Events <-chan provider.StreamEvent
}

// Orchestrator tries candidates in order.
type Orchestrator struct {
	registry *provider.Registry
	tracer   trace.Tracer
}

// WithTracer sets the tracer attempts are recorded with.
var WithTracer = opts.ForName[Orchestrator, trace.Tracer]("tracer")

// New creates an orchestrator resolving candidates through registry.
func New(registry *provider.Registry, options ...opts.Option[Orchestrator]) (*Orchestrator, error) {
	if registry == nil {
		return nil, errors.New("fallback: registry is required")
	}
	o := &Orchestrator{registry: registry}
	if err := opts.Apply(o, options); err != nil {
		return nil, err
	}
	if o.tracer == nil {
		o.tracer = otel.Tracer(tracerName)
	}
	return o, nil
}

// Run tries each candidate until one produces output. Cancellation of ctx is
// returned as ctx.Err(), never wrapped or classified.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Result, error) {
	var last *ClassifiedError

	for i, name := range req.Candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		attempt := i + 1

		result, err := o.attempt(ctx, name, attempt, req.Params)
		if err == nil {
			return result, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		last = &ClassifiedError{Model: name, Class: Classify(err), Err: err}
		if !last.Class.Retryable() {
			slog.ErrorContext(ctx, "candidate failed",
				slogx.Model(name), slog.Int("attempt", attempt),
				slog.String("class", last.Class.String()), slogx.Error(err))
			return nil, last
		}
		slog.WarnContext(ctx, "candidate unavailable, trying next",
			slogx.Model(name), slog.Int("attempt", attempt),
			slog.String("class", last.Class.String()), slogx.Error(err))
	}

	return nil, &ExhaustedError{Attempts: len(req.Candidates), Last: last}
}

func (o *Orchestrator) attempt(ctx context.Context, name string, attempt int, params provider.CompletionParams) (*Result, error) {
	attemptCtx, span := o.tracer.Start(ctx, "fallback.attempt",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrModel.String(name), attrAttempt.Int(attempt)),
	)
	fail := func(err error) error {
		cls := Classify(err)
		if ctx.Err() != nil {
			cls = ClassCanceled
		}
		span.SetAttributes(attrErrorClass.String(cls.String()))
		span.RecordError(err)
		span.SetStatus(codes.Error, "candidate failed")
		span.End()
		return err
	}

	model, ok := o.registry.Lookup(name)
	if !ok {
		return nil, fail(ErrUnknownModel)
	}

	slog.DebugContext(ctx, "trying candidate", slogx.Model(name), slog.Int("attempt", attempt))

	streamCtx, cancel := context.WithCancel(attemptCtx)
	params.Model = name
	events, err := model.Provider().ChatCompletion(streamCtx, params)
	if err != nil {
		cancel()
		return nil, fail(err)
	}

	var buffered []provider.StreamEvent
	for {
		select {
		case <-ctx.Done():
			cancel()
			drain(events)
			return nil, fail(ctx.Err())

		case ev, ok := <-events:
			if !ok {
				// closed without an end marker or an error: nothing more will come
				return o.win(ctx, name, attempt, span, cancel, buffered, nil), nil
			}
			switch ev := ev.(type) {
			case provider.Error:
				cancel()
				drain(events)
				return nil, fail(ev.Err)
			case provider.Chunk:
				if ev.Text == "" {
					continue
				}
				buffered = append(buffered, ev)
				return o.win(ctx, name, attempt, span, cancel, buffered, events), nil
			case provider.Delim:
				buffered = append(buffered, ev)
				if ev.Delim == provider.DelimEnd {
					return o.win(ctx, name, attempt, span, cancel, buffered, events), nil
				}
			}
		}
	}
}

// win hands the winning stream to the caller. The span stays open until the
// stream is finished.
func (o *Orchestrator) win(ctx context.Context, name string, attempt int, span trace.Span, cancel context.CancelFunc, buffered []provider.StreamEvent, rest <-chan provider.StreamEvent) *Result {
	slog.DebugContext(ctx, "candidate selected", slogx.Model(name), slog.Int("attempt", attempt))

	out := make(chan provider.StreamEvent, provider.EventBufferSize)
	go func() {
		defer close(out)
		defer span.End()
		defer cancel()

		for _, ev := range buffered {
			if !provider.Send(ctx, out, ev) {
				cancel()
				drain(rest)
				return
			}
		}
		if rest == nil {
			return
		}
		for ev := range rest {
			if e, ok := ev.(provider.Error); ok {
				span.RecordError(e.Err)
				span.SetStatus(codes.Error, "stream failed")
			}
			if !provider.Send(ctx, out, ev) {
				cancel()
				drain(rest)
				return
			}
		}
	}()

	return &Result{Model: name, Attempts: attempt, Events: out}
}

// drain waits for an abandoned adapter to close its channel.
func drain(events <-chan provider.StreamEvent) {
	if events == nil {
		return
	}
	for range events {
	}
}
