// Package openai serves the OpenAI-compatible surface: chat completions and
// the model listing.
package openai

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/MattyMroz/geminicli2api/internal/apierr"
	"github.com/MattyMroz/geminicli2api/internal/handlers/common"
	"github.com/MattyMroz/geminicli2api/internal/translator"
	"github.com/MattyMroz/geminicli2api/internal/upstream"
)

// Handler carries the dispatcher dependency for the OpenAI routes.
type Handler struct {
	dispatcher *upstream.Dispatcher
}

// NewHandler creates the OpenAI-compatible handler.
func NewHandler(d *upstream.Dispatcher) *Handler {
	return &Handler{dispatcher: d}
}

// ChatCompletions implements POST /v1/chat/completions.
func (h *Handler) ChatCompletions(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		common.JSONBytes(c, http.StatusBadRequest,
			apierr.MarshalOpenAI(http.StatusBadRequest, "failed to read request body"))
		return
	}

	model, stream, geminiBody, err := translator.OpenAIToGeminiRequest(body)
	if err != nil {
		common.JSONBytes(c, http.StatusBadRequest,
			apierr.MarshalOpenAI(http.StatusBadRequest, "Request processing failed: "+err.Error()))
		return
	}
	log.Infof("openai chat completion request: model=%s, stream=%t", model, stream)

	env, err := upstream.BuildFromOpenAI(model, geminiBody)
	if err != nil {
		common.JSONBytes(c, http.StatusBadRequest,
			apierr.MarshalOpenAI(http.StatusBadRequest, "Request processing failed: "+err.Error()))
		return
	}

	if stream {
		h.streamCompletion(c, model, env)
		return
	}
	h.completion(c, model, env)
}

func (h *Handler) completion(c *gin.Context, model string, env *upstream.Envelope) {
	res := h.dispatcher.Send(c.Request.Context(), env, false)
	if !res.OK() {
		common.JSONBytes(c, res.Status, apierr.MarshalOpenAI(res.Status, res.Message))
		return
	}

	payload := translator.UnwrapResponse(stripDataPrefix(res.Body))
	out, err := translator.GeminiToOpenAIResponse(translator.NewSession(model), payload)
	if err != nil {
		log.WithError(err).Error("failed to parse upstream response")
		common.JSONBytes(c, http.StatusInternalServerError,
			apierr.MarshalOpenAI(http.StatusInternalServerError, "Failed to process response: "+err.Error()))
		return
	}
	common.JSONBytes(c, http.StatusOK, out)
}

func (h *Handler) streamCompletion(c *gin.Context, model string, env *upstream.Envelope) {
	common.SetSSEHeaders(c)

	res := h.dispatcher.Send(c.Request.Context(), env, true)
	if !res.OK() {
		// One error frame in OpenAI shape, then the sentinel.
		common.WriteSSEData(c, apierr.MarshalOpenAI(res.Status, res.Message))
		common.WriteSSEDone(c)
		return
	}

	session := translator.NewSession(model)
	log.Infof("starting streaming response: %s", session.ID)

	first := true
	for ev := range translator.ReadFrames(c.Request.Context(), res.Stream) {
		switch ev.Kind {
		case translator.EventData:
			if errMsg := gjson.GetBytes(ev.Data, "error.message"); errMsg.Exists() {
				common.WriteSSEData(c, apierr.MarshalOpenAI(http.StatusBadGateway, errMsg.String()))
				common.WriteSSEDone(c)
				return
			}
			if chunk, ok := translator.GeminiChunkToOpenAI(session, ev.Data, first); ok {
				first = false
				common.WriteSSEData(c, chunk)
			}
		case translator.EventError:
			log.WithError(ev.Err).Error("streaming read failed")
			common.WriteSSEData(c, apierr.MarshalOpenAI(http.StatusBadGateway,
				"Upstream request failed: "+ev.Err.Error()))
			common.WriteSSEDone(c)
			return
		case translator.EventEnd:
			common.WriteSSEDone(c)
			log.Infof("completed streaming response: %s", session.ID)
			return
		}
		if common.ClientGone(c) {
			return
		}
	}
}

// stripDataPrefix drops a leading SSE frame marker some unary responses
// still carry.
func stripDataPrefix(body []byte) []byte {
	const prefix = "data: "
	if len(body) >= len(prefix) && string(body[:len(prefix)]) == prefix {
		return body[len(prefix):]
	}
	return body
}
