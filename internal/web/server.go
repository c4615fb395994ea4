package web

import (
	"fmt"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"container-autopilot/internal/history"
	"container-autopilot/internal/monitoring/engine"
	"container-autopilot/internal/web/handlers"
	"container-autopilot/internal/web/middleware"
)

// Server servidor HTTP de observação do autopilot
// Expõe status, serviços rastreados, histórico de ações e /metrics
type Server struct {
	router *gin.Engine
	engine *engine.Engine
	port   int
	token  string
}

// NewServer cria o servidor web
func NewServer(eng *engine.Engine, tracker *history.Tracker, port int, token string, debug bool) *Server {
	if !debug {
		gin.SetMode(gin.ReleaseMode)
	}

	if token == "" {
		token = "autopilot-dev-token"
		log.Warn().Msg("AUTOPILOT_WEB_TOKEN não definido, usando token de desenvolvimento")
	}

	// gin.New() para controle manual dos middlewares
	router := gin.New()
	router.Use(gin.Recovery())

	server := &Server{
		router: router,
		engine: eng,
		port:   port,
		token:  token,
	}

	server.setupMiddleware()
	server.setupRoutes(tracker)

	return server
}

func (s *Server) setupMiddleware() {
	s.router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))
}

func (s *Server) setupRoutes(tracker *history.Tracker) {
	// Health check (sem auth)
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "ok",
			"running": s.engine.IsRunning(),
		})
	})

	// Métricas Prometheus (sem auth, scrape interno)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 (com auth)
	api := s.router.Group("/api/v1")
	api.Use(middleware.AuthMiddleware(s.token))

	statusHandler := handlers.NewStatusHandler(s.engine, tracker)
	api.GET("/status", statusHandler.Status)
	api.GET("/services", statusHandler.Services)
	api.GET("/services/:id/samples", statusHandler.Samples)
	api.GET("/history", statusHandler.History)
	api.POST("/pause", statusHandler.Pause)
	api.POST("/resume", statusHandler.Resume)
}

// Start inicia o servidor (bloqueante)
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)

	log.Info().
		Int("port", s.port).
		Msg("Servidor web iniciado")

	if err := s.router.Run(addr); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("web server failed: %w", err)
	}
	return nil
}
