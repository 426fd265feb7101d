package message

import (
	"context"
	"net/http"

	"PPRealtime/module/event"

	"github.com/gin-gonic/gin"
)

// Publisher is the typed side of realtime.Producer.
type Publisher interface {
	PublishMessage(ctx context.Context, msg event.Payload) bool
	PublishUserActivity(ctx context.Context, activity event.Payload) bool
	PublishReaction(ctx context.Context, reaction event.Payload) bool
	PublishNotification(ctx context.Context, n event.Payload) bool
}

// HandlerPublish accepts POST /realtime/publish/:topic with a JSON payload body
// and hands it to the producer. A degraded producer answers 503.
func HandlerPublish(p Publisher) gin.HandlerFunc {
	return func(c *gin.Context) {
		var payload event.Payload
		if err := c.ShouldBindJSON(&payload); err != nil || len(payload) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "json object body required"})
			return
		}

		ctx := c.Request.Context()
		var ok bool
		switch topic := c.Param("topic"); topic {
		case event.TopicMessages:
			ok = p.PublishMessage(ctx, payload)
		case event.TopicUserActivity:
			ok = p.PublishUserActivity(ctx, payload)
		case event.TopicReactions:
			ok = p.PublishReaction(ctx, payload)
		case event.TopicNotifications:
			ok = p.PublishNotification(ctx, payload)
		default:
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown topic " + topic})
			return
		}

		if !ok {
			c.JSON(http.StatusServiceUnavailable, gin.H{"published": false})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"published": true})
	}
}
