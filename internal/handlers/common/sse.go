// Package common holds response helpers shared by the OpenAI and Gemini
// handler packages.
package common

import (
	"github.com/gin-gonic/gin"
)

// SetSSEHeaders applies the event-stream headers the upstream API itself
// sends, so downstream clients see a familiar surface.
func SetSSEHeaders(c *gin.Context) {
	h := c.Writer.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Content-Disposition", "attachment")
	h.Set("Vary", "Origin, X-Origin, Referer")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("X-Frame-Options", "SAMEORIGIN")
}

// WriteSSEData writes one data frame and flushes it immediately.
func WriteSSEData(c *gin.Context, payload []byte) {
	c.Writer.Write([]byte("data: "))
	c.Writer.Write(payload)
	c.Writer.Write([]byte("\n\n"))
	c.Writer.Flush()
}

// WriteSSEDone writes the literal [DONE] sentinel.
func WriteSSEDone(c *gin.Context) {
	c.Writer.Write([]byte("data: [DONE]\n\n"))
	c.Writer.Flush()
}

// JSONBytes writes a raw JSON body with the given status.
func JSONBytes(c *gin.Context, status int, body []byte) {
	c.Data(status, "application/json; charset=utf-8", body)
}

// ClientGone reports whether the client hung up.
func ClientGone(c *gin.Context) bool {
	select {
	case <-c.Request.Context().Done():
		return true
	default:
		return false
	}
}
