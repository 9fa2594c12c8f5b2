// Package api exposes the local control surface over HTTP. It is how a UI
// process drives the session machine; it never faces the network peer.
package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lanlink/protocol/pkg/discovery"
	"github.com/lanlink/protocol/pkg/session"
	"github.com/lanlink/protocol/pkg/storage"
)

// Server is the HTTP control API
type Server struct {
	machine    *session.Machine
	disc       *discovery.Service
	store      *storage.Store
	router     *gin.Engine
	port       int
	httpServer *http.Server
}

// Config holds server configuration
type Config struct {
	Port         int
	EnableCORS   bool
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns default server configuration
func DefaultConfig() *Config {
	return &Config{
		Port:         8460,
		EnableCORS:   true,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// NewServer creates the control API around the running collaborators
func NewServer(machine *session.Machine, disc *discovery.Service, store *storage.Store, config *Config) *Server {
	if config == nil {
		config = DefaultConfig()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	server := &Server{
		machine: machine,
		disc:    disc,
		store:   store,
		router:  router,
		port:    config.Port,
	}

	router.Use(LoggingMiddleware())
	router.Use(gin.Recovery())
	if config.EnableCORS {
		router.Use(CORSMiddleware())
	}

	server.setupRoutes()
	return server
}

// setupRoutes configures API routes
func (s *Server) setupRoutes() {
	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/status", s.handleStatus)
		v1.GET("/peers", s.handlePeers)
		v1.GET("/transfers", s.handleTransfers)
		v1.GET("/contacts", s.handleContacts)
		v1.GET("/messages/:peerID", s.handleMessages)

		v1.POST("/discover", s.handleDiscover)
		v1.POST("/connect", s.handleConnect)
		v1.POST("/accept", s.handleAccept)
		v1.POST("/reject", s.handleReject)
		v1.POST("/disconnect", s.handleDisconnect)

		v1.POST("/send-file", s.handleSendFile)
		v1.POST("/send-files", s.handleSendFiles)
		v1.POST("/message", s.handleMessage)

		files := v1.Group("/files")
		{
			files.POST("/accept", s.handleAcceptFile)
			files.POST("/reject", s.handleRejectFile)
		}

		call := v1.Group("/call")
		{
			call.POST("/request", s.handleCallRequest)
			call.POST("/accept", s.handleCallAccept)
			call.POST("/end", s.handleCallEnd)
		}

		v1.DELETE("/pins/:peerID", s.handleForgetPin)
	}

	s.router.GET("/health", s.handleHealth)
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("🌐 Control API listening on port %d", s.port)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("❌ Control API error: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}
