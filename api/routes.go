package api

import (
	_ "embed"
	"net/http"

	"github.com/gin-gonic/gin"
)

//go:embed openapi.json
var openAPISpec []byte

//go:embed docs.html
var docsPage []byte

// Register mounts the gateway routes on r. protect runs before the
// transcription handlers only; health and docs stay open.
func (h *Handler) Register(r gin.IRouter, protect ...gin.HandlerFunc) {
	r.GET("/", func(c *gin.Context) {
		c.Redirect(http.StatusTemporaryRedirect, "/docs")
	})
	r.GET("/docs", func(c *gin.Context) {
		c.Data(http.StatusOK, "text/html; charset=utf-8", docsPage)
	})
	r.GET("/openapi.json", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json", openAPISpec)
	})
	r.GET("/v1/health", h.Health)

	transcribe := r.Group("", protect...)
	transcribe.POST("/v1/audio/transcriptions", h.Transcriptions)
	transcribe.POST("/transcribe", h.Transcribe)
}
