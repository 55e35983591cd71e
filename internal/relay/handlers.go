package relay

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/casualjim/streamgate/events"
	"github.com/casualjim/streamgate/internal/store"
	"github.com/casualjim/streamgate/pkg/slogx"
	"github.com/gin-gonic/gin"
	"github.com/go-openapi/strfmt"
	"github.com/invopop/jsonschema"
)

// StatusResponse is the body of GET /v1/chat/streams/:id.
type StatusResponse struct {
	StreamID  string          `json:"streamId"`
	Model     string          `json:"model,omitempty"`
	Content   string          `json:"content"`
	CreatedAt strfmt.DateTime `json:"createdAt"`
	UpdatedAt strfmt.DateTime `json:"updatedAt"`
	Active    bool            `json:"active"`
}

// Status reports what a stream has produced so far.
func (r *Relay) Status(c *gin.Context) {
	id := c.Param("id")
	session, err := r.store.Get(c.Request.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		abortWithError(c, http.StatusNotFound, "stream not found")
		return
	}
	if err != nil {
		slog.ErrorContext(c.Request.Context(), "failed to load stream", slogx.StreamID(id), slogx.Error(err))
		abortWithError(c, http.StatusInternalServerError, "failed to load stream")
		return
	}

	c.JSON(http.StatusOK, StatusResponse{
		StreamID:  session.ID,
		Model:     session.Model,
		Content:   session.Text,
		CreatedAt: strfmt.DateTime(session.CreatedAt.UTC()),
		UpdatedAt: strfmt.DateTime(session.UpdatedAt.UTC()),
		Active:    r.leases.isActive(id),
	})
}

// Cancel stops a stream that is in flight on this instance.
func (r *Relay) Cancel(c *gin.Context) {
	id := c.Param("id")
	if !r.leases.cancel(id) {
		abortWithError(c, http.StatusNotFound, "stream not active")
		return
	}
	slog.InfoContext(c.Request.Context(), "stream cancel requested", slogx.StreamID(id), slogx.LoggerName("relay"))
	c.JSON(http.StatusAccepted, gin.H{"streamId": id, "status": "cancelling"})
}

// Watch relays the live events of a stream in flight on this instance. Only
// events published after the watcher joined are delivered; Status returns the
// text produced before that.
func (r *Relay) Watch(c *gin.Context) {
	id := c.Param("id")
	if !r.leases.isActive(id) {
		abortWithError(c, http.StatusNotFound, "stream not active")
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	feed := make(chan events.Event, subscriptionBuffer)
	sub, err := r.broker.Topic(ctx, id).Subscribe(ctx, func(ctx context.Context, ev events.Event) {
		select {
		case feed <- ev:
		case <-ctx.Done():
		}
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to watch stream", slogx.StreamID(id), slogx.Error(err))
		abortWithError(c, http.StatusInternalServerError, "failed to watch stream")
		return
	}
	defer sub.Unsubscribe()

	w := newStreamWriter(c.Writer)
	defer w.Close(nil)
	if err := w.Write(events.StreamID{StreamID: id, Timestamp: strfmt.DateTime(r.now().UTC())}); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.Done():
			// deliver what was queued before the subscription ended
			for {
				select {
				case ev := <-feed:
					if w.Write(ev) != nil || events.IsTerminal(ev) {
						return
					}
				default:
					return
				}
			}
		case ev := <-feed:
			if w.Write(ev) != nil || events.IsTerminal(ev) {
				return
			}
		}
	}
}

const subscriptionBuffer = 32

var (
	schemaOnce sync.Once
	chatSchema *jsonschema.Schema
)

// Schema returns the JSON schema of ChatRequest.
func (r *Relay) Schema(c *gin.Context) {
	schemaOnce.Do(func() {
		reflector := jsonschema.Reflector{DoNotReference: true}
		chatSchema = reflector.Reflect(&ChatRequest{})
	})
	c.JSON(http.StatusOK, chatSchema)
}
