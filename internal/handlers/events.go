package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/n1hub/deepmine-engine/internal/sse"
)

type EventsHandler struct {
	hub *sse.Hub
}

func NewEventsHandler(hub *sse.Hub) *EventsHandler {
	return &EventsHandler{hub: hub}
}

// Stream holds the connection open and relays job updates until the client
// goes away.
func (eh *EventsHandler) Stream(c *gin.Context) {
	client := eh.hub.NewClient()
	defer eh.hub.CloseClient(client)
	eh.hub.ServeHTTP(c.Writer, c.Request, client)
}
