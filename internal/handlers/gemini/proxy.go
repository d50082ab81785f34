// Package gemini serves the native passthrough surface: generate calls in
// unary and streaming form, plus the native model listing.
package gemini

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/MattyMroz/geminicli2api/internal/apierr"
	"github.com/MattyMroz/geminicli2api/internal/handlers/common"
	"github.com/MattyMroz/geminicli2api/internal/translator"
	"github.com/MattyMroz/geminicli2api/internal/upstream"
)

// Handler carries the dispatcher dependency for the native routes.
type Handler struct {
	dispatcher *upstream.Dispatcher
}

// NewHandler creates the native Gemini handler.
func NewHandler(d *upstream.Dispatcher) *Handler {
	return &Handler{dispatcher: d}
}

// Proxy implements GET|POST /v1beta/models/{model}[:{action}] and the /v1
// equivalents. The action defaults to generateContent; a "stream" prefix in
// the action selects SSE output.
func (h *Handler) Proxy(c *gin.Context) {
	model, action := splitModelAction(c.Param("model"))
	streaming := strings.HasPrefix(strings.ToLower(action), "stream")

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		common.JSONBytes(c, http.StatusBadRequest,
			apierr.MarshalGemini(http.StatusBadRequest, "failed to read request body"))
		return
	}
	log.Infof("gemini proxy request: model=%s, action=%s, stream=%t", model, action, streaming)

	env, err := upstream.BuildFromNative(model, body)
	if err != nil {
		common.JSONBytes(c, http.StatusBadRequest,
			apierr.MarshalGemini(http.StatusBadRequest, "Invalid JSON in request body"))
		return
	}

	if streaming {
		h.streamGenerate(c, env)
		return
	}
	h.generate(c, env)
}

func (h *Handler) generate(c *gin.Context, env *upstream.Envelope) {
	res := h.dispatcher.Send(c.Request.Context(), env, false)
	if !res.OK() {
		common.JSONBytes(c, res.Status, apierr.MarshalGemini(res.Status, res.Message))
		return
	}
	common.JSONBytes(c, http.StatusOK, translator.UnwrapResponse(stripDataPrefix(res.Body)))
}

func (h *Handler) streamGenerate(c *gin.Context, env *upstream.Envelope) {
	common.SetSSEHeaders(c)

	res := h.dispatcher.Send(c.Request.Context(), env, true)
	if !res.OK() {
		c.Status(res.Status)
		common.WriteSSEData(c, apierr.MarshalGemini(res.Status, res.Message))
		return
	}

	for ev := range translator.ReadFrames(c.Request.Context(), res.Stream) {
		switch ev.Kind {
		case translator.EventData:
			common.WriteSSEData(c, ev.Data)
		case translator.EventError:
			log.WithError(ev.Err).Error("streaming read failed")
			common.WriteSSEData(c, apierr.MarshalGemini(http.StatusBadGateway,
				"Upstream request failed: "+ev.Err.Error()))
			return
		case translator.EventEnd:
			return
		}
		if common.ClientGone(c) {
			return
		}
	}
}

// splitModelAction separates "model:action" path segments; a bare model
// name defaults to generateContent.
func splitModelAction(param string) (model, action string) {
	param = strings.TrimPrefix(param, "/")
	if model, action, ok := strings.Cut(param, ":"); ok {
		return model, action
	}
	return param, "generateContent"
}

func stripDataPrefix(body []byte) []byte {
	const prefix = "data: "
	if len(body) >= len(prefix) && string(body[:len(prefix)]) == prefix {
		return body[len(prefix):]
	}
	return body
}
