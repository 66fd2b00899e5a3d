package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/n1hub/deepmine-engine/internal/rag"
	"github.com/n1hub/deepmine-engine/internal/types"
)

type ChatHandler struct {
	engine *rag.Engine
}

func NewChatHandler(engine *rag.Engine) *ChatHandler {
	return &ChatHandler{engine: engine}
}

func (ch *ChatHandler) Chat(c *gin.Context) {
	var request types.ChatRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if request.Query == "" {
		RespondError(c, http.StatusBadRequest, "invalid_request", errors.New("query is required"))
		return
	}
	response, err := ch.engine.Answer(c.Request.Context(), request)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "chat_failed", err)
		return
	}
	RespondOK(c, response)
}
