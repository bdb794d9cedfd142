package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	carenest "github.com/gaurav-seth/carenest-helper"
	"github.com/gaurav-seth/carenest-helper/broadcast"
)

const ackTimeout = 5 * time.Second

// helperStream forwards job.created events to one helper over SSE. Each
// connection is its own subscriber, so it sees every announcement.
func (a *API) helperStream(c *gin.Context) {
	helperPhone := strings.TrimSpace(c.Query("helperPhone"))
	if helperPhone == "" {
		writeError(c, fmt.Errorf("%w: helperPhone is required", carenest.ErrInvalidInput))
		return
	}
	a.stream(c, "sse-helper-"+helperPhone+"-"+uuid.NewString(), broadcast.TopicJobs)
}

// activityStream forwards claim results over SSE.
func (a *API) activityStream(c *gin.Context) {
	a.stream(c, "sse-activity-"+uuid.NewString(), broadcast.TopicActivity)
}

func (a *API) stream(c *gin.Context, subscriberID string, topics ...string) {
	ctx := c.Request.Context()
	sub, err := a.eng.Subscribe(ctx, subscriberID, topics...)
	if err != nil {
		writeError(c, err)
		return
	}
	defer sub.Close()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	heartbeat := time.NewTicker(a.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			c.SSEvent("ping", time.Now().UTC().Format(time.RFC3339))
			c.Writer.Flush()
		case d, ok := <-sub.C():
			if !ok {
				return
			}
			c.SSEvent(string(d.Event.Type), d.Event)
			c.Writer.Flush()

			ackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ackTimeout)
			if err := d.Ack(ackCtx); err != nil {
				a.logger.Warn("sse ack failed",
					slog.String("subscriber", subscriberID),
					slog.String("event_id", d.Event.ID),
					slog.String("error", err.Error()),
				)
			}
			cancel()
		}
	}
}
