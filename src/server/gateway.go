package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"market-feed/src/logger"
	"market-feed/src/models"
	"market-feed/src/multiplexer"
	"market-feed/src/utils"

	"github.com/gin-gonic/gin"
)

// Datafeed is what the gateway serves to UI clients.
type Datafeed interface {
	OnReady() *utils.Future[models.MDatafeedConfiguration]
	SearchSymbols(query, exchange, symbolType string) []models.MSymbol
	ResolveSymbol(name string) *utils.Future[models.MSymbol]
	GetBars(ctx context.Context, symbol models.MSymbol, resolution string, period models.MPeriodParams) *utils.Future[models.MHistoryResult]
	SubscribeBars(symbol models.MSymbol, resolution, subscriberUID string, h multiplexer.Handlers) error
	UnsubscribeBars(subscriberUID string)
	Status() models.MFeedStatus
	AnyMarketOpen() bool
}

const requestTimeout = 30 * time.Second

// -----------------------------------------------------------------------------
// GatewayServer
// -----------------------------------------------------------------------------

type GatewayServer struct {
	Config *models.MConfig
	Logger *logger.Logger
	feed   Datafeed
	engine *gin.Engine
	http   *http.Server

	// WebSocket clients, owned by the hub loop
	clients    map[*Client]struct{}
	broadcast  chan models.MGatewayMessage
	register   chan *Client
	unregister chan *Client
	quit       chan struct{}
	stopOnce   sync.Once

	// Last broadcast, replayed to new clients
	latest     *models.MGatewayMessage
	stateMutex sync.RWMutex
	clientsN   int
}

// -----------------------------------------------------------------------------
// Constructor
// -----------------------------------------------------------------------------

func NewGatewayServer(cfg *models.MConfig, feed Datafeed, logger *logger.Logger) *GatewayServer {
	// Set Gin mode
	if cfg.LogLevel != "DEBUG" {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &GatewayServer{
		Config:     cfg,
		Logger:     logger,
		feed:       feed,
		engine:     gin.New(),
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan models.MGatewayMessage, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		quit:       make(chan struct{}),
	}
	s.engine.Use(gin.Recovery())
	if cfg.LogLevel == "DEBUG" {
		s.engine.Use(gin.Logger())
	}

	// CORS for local UI development
	s.engine.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if strings.HasPrefix(origin, "http://127.0.0.1:") || strings.HasPrefix(origin, "http://localhost:") {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "OPTIONS, GET")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	s.setupRoutes()
	go s.handleWebsockets()
	return s
}

// -----------------------------------------------------------------------------
// Route Setup
// -----------------------------------------------------------------------------

func (s *GatewayServer) setupRoutes() {
	s.engine.GET("/api/config", s.getConfig)
	s.engine.GET("/api/search", s.searchSymbols)
	s.engine.GET("/api/symbols", s.resolveSymbol)
	s.engine.GET("/api/history", s.getHistory)
	s.engine.GET("/api/health", s.getHealth)

	// WebSocket endpoint
	s.engine.GET("/ws", s.handleWebSocket)
}

// Handler exposes the router, mainly for httptest.
func (s *GatewayServer) Handler() http.Handler {
	return s.engine
}

// -----------------------------------------------------------------------------
// Server Lifecycle
// -----------------------------------------------------------------------------

func (s *GatewayServer) Start() error {
	addr := fmt.Sprintf("%s:%d", s.Config.Host, s.Config.Port)
	s.Logger.Info("Starting gateway on %s", addr)

	s.stateMutex.Lock()
	s.http = &http.Server{Addr: addr, Handler: s.engine}
	srv := s.http
	s.stateMutex.Unlock()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// -----------------------------------------------------------------------------

func (s *GatewayServer) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		close(s.quit)

		s.stateMutex.RLock()
		srv := s.http
		s.stateMutex.RUnlock()
		if srv == nil {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err = srv.Shutdown(ctx)
	})
	return err
}
