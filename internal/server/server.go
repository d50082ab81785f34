// Package server assembles the gin router and owns the HTTP listener
// lifecycle.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/MattyMroz/geminicli2api/internal/account"
	"github.com/MattyMroz/geminicli2api/internal/config"
	geminihandler "github.com/MattyMroz/geminicli2api/internal/handlers/gemini"
	openaihandler "github.com/MattyMroz/geminicli2api/internal/handlers/openai"
	"github.com/MattyMroz/geminicli2api/internal/middleware"
	"github.com/MattyMroz/geminicli2api/internal/upstream"
)

// Server is the assembled HTTP front end.
type Server struct {
	engine   *gin.Engine
	cfg      *config.Config
	accounts *account.Store
	httpSrv  *http.Server
}

// New builds the router. Health, root, and CORS preflight stay
// unauthenticated; everything else requires the shared secret.
func New(cfg *config.Config, accounts *account.Store, dispatcher *upstream.Dispatcher) *Server {
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), middleware.RequestLogger(), middleware.CORS())

	s := &Server{engine: engine, cfg: cfg, accounts: accounts}
	s.registerSystemRoutes()

	auth := middleware.Auth(cfg.AuthPassword)
	oai := openaihandler.NewHandler(dispatcher)
	gem := geminihandler.NewHandler(dispatcher)

	engine.POST("/v1/chat/completions", auth, oai.ChatCompletions)
	engine.GET("/v1/models", auth, oai.ListModels)

	engine.GET("/v1beta/models", auth, gem.ListModels)
	for _, route := range []string{"/v1beta/models/:model", "/v1/models/:model"} {
		engine.GET(route, auth, gem.Proxy)
		engine.POST(route, auth, gem.Proxy)
	}

	return s
}

func (s *Server) registerSystemRoutes() {
	s.engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":   "healthy",
			"service":  "geminicli2api",
			"accounts": s.accounts.Count(),
		})
	})

	s.engine.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"name":        "geminicli2api",
			"description": "Universal Gemini API Proxy — OpenAI-compatible + native Gemini endpoints",
			"accounts":    s.accounts.Count(),
			"endpoints": gin.H{
				"openai_compatible": gin.H{
					"chat_completions": "/v1/chat/completions",
					"models":           "/v1/models",
				},
				"native_gemini": gin.H{
					"models":   "/v1beta/models",
					"generate": "/v1beta/models/{model}:generateContent",
					"stream":   "/v1beta/models/{model}:streamGenerateContent",
				},
				"health": "/health",
			},
			"authentication": "Required. Use Bearer token, Basic Auth, 'key' query param, or 'x-goog-api-key' header.",
		})
	})
}

// Engine exposes the router for tests.
func (s *Server) Engine() *gin.Engine { return s.engine }

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:              s.cfg.Host + ":" + s.cfg.Port,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("server ready at http://%s", s.httpSrv.Addr)
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return s.httpSrv.Shutdown(shutdownCtx)
}
