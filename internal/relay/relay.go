package relay

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/casualjim/streamgate/events"
	"github.com/casualjim/streamgate/internal/broker"
	"github.com/casualjim/streamgate/internal/fallback"
	"github.com/casualjim/streamgate/internal/ratelimit"
	"github.com/casualjim/streamgate/internal/resume"
	"github.com/casualjim/streamgate/internal/store"
	"github.com/casualjim/streamgate/pkg/slogx"
	"github.com/casualjim/streamgate/pkg/uuidx"
	"github.com/casualjim/streamgate/provider"
	"github.com/fogfish/opts"
	"github.com/gin-gonic/gin"
	"github.com/go-openapi/strfmt"
	json "github.com/goccy/go-json"
)

const (
	defaultMaxBodyBytes = 1 << 20
	headerUserID        = "X-User-ID"

	outcomeCompleted = "completed"
	outcomeCancelled = "cancelled"
	outcomeFailed    = "failed"
)

// Relay serves the streaming endpoints.
type Relay struct {
	store          store.Store
	registry       *provider.Registry
	broker         broker.Broker
	limiter        ratelimit.Limiter
	fallbackModels []string
	maxBodyBytes   int64
	orchOptions    []opts.Option[fallback.Orchestrator]

	coordinator  *resume.Coordinator
	orchestrator *fallback.Orchestrator
	leases       *leases
	now          func() time.Time
}

var (
	// WithStore sets the session store. Required.
	WithStore = opts.ForName[Relay, store.Store]("store")
	// WithRegistry sets the models clients may request. Required.
	WithRegistry = opts.ForName[Relay, *provider.Registry]("registry")
	// WithBroker sets where stream events are published for watchers.
	WithBroker = opts.ForName[Relay, broker.Broker]("broker")
	// WithLimiter throttles POST /v1/chat/completions per caller.
	WithLimiter = opts.ForName[Relay, ratelimit.Limiter]("limiter")
	// WithFallbackModels sets the models tried after the preferred one.
	WithFallbackModels = opts.ForName[Relay, []string]("fallbackModels")
	// WithMaxBodyBytes limits the size of request bodies.
	WithMaxBodyBytes = opts.ForName[Relay, int64]("maxBodyBytes")
)

// WithOrchestratorOptions passes options to the fallback orchestrator.
func WithOrchestratorOptions(options ...opts.Option[fallback.Orchestrator]) opts.Option[Relay] {
	return opts.Type[Relay](func(r *Relay) error {
		r.orchOptions = append(r.orchOptions, options...)
		return nil
	})
}

// New creates a relay.
func New(options ...opts.Option[Relay]) (*Relay, error) {
	r := &Relay{
		maxBodyBytes: defaultMaxBodyBytes,
		leases:       newLeases(),
		now:          time.Now,
	}
	if err := opts.Apply(r, options); err != nil {
		return nil, err
	}
	if r.store == nil {
		return nil, errors.New("relay: a store is required")
	}
	if r.registry == nil {
		return nil, errors.New("relay: a model registry is required")
	}
	if r.broker == nil {
		r.broker = broker.Local()
	}
	if r.limiter == nil {
		r.limiter = ratelimit.Unlimited{}
	}
	if r.maxBodyBytes <= 0 {
		r.maxBodyBytes = defaultMaxBodyBytes
	}

	orch, err := fallback.New(r.registry, r.orchOptions...)
	if err != nil {
		return nil, err
	}
	r.orchestrator = orch
	r.coordinator = resume.New(r.store)
	return r, nil
}

// Register mounts the relay's endpoints on router.
func (r *Relay) Register(router gin.IRouter) {
	v1 := router.Group("/v1")
	v1.POST("/chat/completions", ratelimit.Middleware(r.limiter, nil), r.Stream)
	v1.GET("/chat/streams/:id", r.Status)
	v1.POST("/chat/streams/:id/cancel", r.Cancel)
	v1.GET("/chat/streams/:id/events", r.Watch)
	v1.GET("/schema/chat", r.Schema)
}

func abortWithError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

func (r *Relay) decode(c *gin.Context) (*ChatRequest, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, r.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			abortWithError(c, http.StatusRequestEntityTooLarge, "request body too large")
			return nil, false
		}
		abortWithError(c, http.StatusBadRequest, "failed to read request")
		return nil, false
	}

	var req ChatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid request body")
		return nil, false
	}
	if err := req.Validate(r.registry.Allowed); err != nil {
		abortWithError(c, http.StatusBadRequest, err.Error())
		return nil, false
	}
	return &req, true
}

// upstreamStatus maps a failure before the first chunk onto an HTTP status.
func upstreamStatus(err error) (int, string) {
	var exhausted *fallback.ExhaustedError
	if errors.As(err, &exhausted) {
		return http.StatusServiceUnavailable, "no upstream model is available"
	}
	switch fallback.Classify(err) {
	case fallback.ClassAuth:
		return http.StatusUnauthorized, "upstream rejected the credentials"
	case fallback.ClassValidation:
		return http.StatusBadRequest, "upstream rejected the request"
	case fallback.ClassUnavailable, fallback.ClassRateLimit:
		return http.StatusServiceUnavailable, "no upstream model is available"
	default:
		return http.StatusBadGateway, "upstream request failed"
	}
}

// streamRun carries the per-request state of Stream.
type streamRun struct {
	relay   *Relay
	id      string
	writer  *streamWriter
	topic   broker.Topic
	persist context.Context
	logger  *slog.Logger
}

// emit writes ev to the client and publishes it for watchers.
func (s *streamRun) emit(ev events.Event) error {
	err := s.writer.Write(ev)
	s.publish(ev)
	return err
}

// finish writes ev as the final frame, publishes it and closes the writer.
func (s *streamRun) finish(ev events.Event) {
	s.writer.Close(ev)
	s.publish(ev)
}

func (s *streamRun) publish(ev events.Event) {
	if err := s.topic.Publish(s.persist, ev); err != nil {
		s.logger.Debug("failed to publish stream event", slogx.Error(err))
	}
}

func (s *streamRun) stamp() strfmt.DateTime {
	return strfmt.DateTime(s.relay.now().UTC())
}

// Stream handles POST /v1/chat/completions.
func (r *Relay) Stream(c *gin.Context) {
	req, ok := r.decode(c)
	if !ok {
		return
	}
	authToken, err := bearerToken(c.GetHeader("Authorization"))
	if err != nil {
		abortWithError(c, http.StatusUnauthorized, err.Error())
		return
	}

	reqCtx := c.Request.Context()
	plan, err := r.coordinator.Prepare(reqCtx, resume.Request{
		StreamID:       req.StreamID,
		Resume:         req.Resume,
		PartialContent: req.PartialContent,
		Messages:       req.Messages,
	})
	if err != nil {
		// the client is gone
		return
	}

	streamCtx, cancel := context.WithCancelCause(reqCtx)
	defer cancel(nil)
	release, err := r.leases.acquire(plan.StreamID, cancel)
	if err != nil {
		abortWithError(c, http.StatusConflict, "stream already active")
		return
	}
	defer release()

	// store writes outlive the client connection so partial output survives a disconnect
	persistCtx := context.WithoutCancel(reqCtx)
	run := &streamRun{
		relay:   r,
		id:      plan.StreamID,
		writer:  newStreamWriter(c.Writer),
		topic:   r.broker.Topic(persistCtx, plan.StreamID),
		persist: persistCtx,
		logger:  slog.With(slogx.StreamID(plan.StreamID), slogx.LoggerName("relay")),
	}
	defer r.broker.Remove(persistCtx, plan.StreamID)

	preferred := req.Model
	if plan.Session != nil {
		if authToken == "" {
			authToken = plan.Session.AuthToken
		}
		if preferred == "" {
			preferred = plan.Session.Model
		}
	}
	created := r.ensureSession(run, req, &plan, authToken)

	candidates := fallback.Candidates(preferred, r.fallbackModels)
	run.logger.InfoContext(reqCtx, "stream started",
		slog.Bool("resumed", plan.Resumed), slog.Any("candidates", candidates))

	if plan.Resumed {
		_ = run.emit(events.StreamID{StreamID: run.id, Resumed: true, Timestamp: run.stamp()})
		_ = run.emit(events.Replay{StreamID: run.id, Content: plan.PreviousContent, Timestamp: run.stamp()})
	}

	temperature, maxTokens := req.Sampling()
	result, err := r.orchestrator.Run(streamCtx, fallback.Request{
		Candidates: candidates,
		Params: provider.CompletionParams{
			RunID:       uuidx.New(),
			Messages:    plan.Messages,
			Temperature: temperature,
			MaxTokens:   maxTokens,
			AuthToken:   authToken,
			User:        c.GetHeader(headerUserID),
		},
	})
	if err != nil {
		if created && !plan.Resumed {
			// the client never learned this id
			r.discardSession(run)
		}
		if streamCtx.Err() != nil {
			r.cancelled(streamCtx, run, 0)
			return
		}
		run.logger.ErrorContext(reqCtx, "stream failed", slogx.Error(err), slogx.Outcome(outcomeFailed))
		if run.writer.Committed() {
			_, msg := upstreamStatus(err)
			run.finish(events.Error{StreamID: run.id, Message: msg, Timestamp: run.stamp()})
			return
		}
		status, msg := upstreamStatus(err)
		abortWithError(c, status, msg)
		return
	}

	if err := r.store.SetModel(persistCtx, run.id, result.Model); err != nil {
		run.logger.WarnContext(reqCtx, "failed to record model", slogx.Error(err))
	}
	if !plan.Resumed {
		_ = run.emit(events.StreamID{StreamID: run.id, Timestamp: run.stamp()})
	}

	r.relayEvents(streamCtx, run, result)
}

// ensureSession makes sure the store holds a session the new output can be
// appended to and reports whether it created one.
func (r *Relay) ensureSession(run *streamRun, req *ChatRequest, plan *resume.Plan, authToken string) bool {
	if plan.Session == nil {
		err := r.store.Create(run.persist, &store.Session{
			ID:        run.id,
			Messages:  req.Messages,
			Text:      plan.PreviousContent,
			AuthToken: authToken,
		})
		if err != nil {
			run.logger.Warn("failed to create session, output will not be resumable", slogx.Error(err))
			return false
		}
		return true
	}

	// the client saw more than was stored; catch the store up so it matches what the model is told
	stored := plan.Session.Text
	if len(plan.PreviousContent) > len(stored) && strings.HasPrefix(plan.PreviousContent, stored) {
		if err := r.store.Append(run.persist, run.id, plan.PreviousContent[len(stored):]); err != nil {
			run.logger.Warn("failed to extend session", slogx.Error(err))
		}
	}
	return false
}

func (r *Relay) discardSession(run *streamRun) {
	if err := r.store.Delete(run.persist, run.id); err != nil {
		run.logger.Warn("failed to discard session", slogx.Error(err))
	}
}

func (r *Relay) relayEvents(ctx context.Context, run *streamRun, result *fallback.Result) {
	var produced int
	for {
		select {
		case <-ctx.Done():
			r.cancelled(ctx, run, produced)
			return

		case ev, ok := <-result.Events:
			if !ok {
				if ctx.Err() != nil {
					r.cancelled(ctx, run, produced)
					return
				}
				run.finish(events.Done{StreamID: run.id, Model: result.Model, Timestamp: run.stamp()})
				run.logger.Info("stream completed",
					slogx.Model(result.Model), slog.Int("attempts", result.Attempts),
					slog.Int("chars", produced), slogx.Outcome(outcomeCompleted))
				return
			}

			switch ev := ev.(type) {
			case provider.Chunk:
				if ev.Text == "" {
					continue
				}
				if err := r.store.Append(run.persist, run.id, ev.Text); err != nil {
					run.logger.Warn("failed to persist chunk", slogx.Error(err))
				}
				produced += len(ev.Text)
				if err := run.emit(events.Delta{StreamID: run.id, Content: ev.Text, Timestamp: run.stamp()}); err != nil {
					run.logger.Debug("client write failed", slogx.Error(err))
				}

			case provider.Error:
				if ctx.Err() != nil {
					r.cancelled(ctx, run, produced)
					return
				}
				run.logger.Error("stream failed", slogx.Model(result.Model), slogx.Error(ev.Err),
					slog.Int("chars", produced), slogx.Outcome(outcomeFailed))
				run.finish(events.Error{StreamID: run.id, Message: "upstream stream failed", Timestamp: run.stamp()})
				return
			}
		}
	}
}

// cancelled ends a stream whose context is done. Everything produced so far is
// already in the store.
func (r *Relay) cancelled(ctx context.Context, run *streamRun, produced int) {
	reason := "client disconnected"
	if errors.Is(context.Cause(ctx), errCancelRequested) {
		reason = "cancelled"
	}
	run.finish(events.Abort{StreamID: run.id, Reason: reason, Timestamp: run.stamp()})
	run.logger.Info("stream cancelled", slog.String("reason", reason),
		slog.Int("chars", produced), slogx.Outcome(outcomeCancelled))
}
