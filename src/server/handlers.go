package server

import (
	"context"
	"errors"
	"net/http"

	"market-feed/src/helpers"
	"market-feed/src/models"

	"github.com/gin-gonic/gin"
)

type searchQuery struct {
	Query    string `form:"query"`
	Exchange string `form:"exchange"`
	Type     string `form:"type"`
	Limit    int    `form:"limit"`
}

type historyQuery struct {
	Symbol     string `form:"symbol" binding:"required"`
	Resolution string `form:"resolution" binding:"required"`
	From       int64  `form:"from"`
	To         int64  `form:"to"`
	CountBack  int    `form:"countback"`
	First      bool   `form:"first"`
}

type configResponse struct {
	models.MDatafeedConfiguration
	DefaultSymbol string `json:"default_symbol,omitempty"`
}

// -----------------------------------------------------------------------------
// Route Handlers
// -----------------------------------------------------------------------------

func (s *GatewayServer) getConfig(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	conf, err := s.feed.OnReady().Await(ctx)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, configResponse{MDatafeedConfiguration: conf, DefaultSymbol: s.Config.Feed.Symbol})
}

// -----------------------------------------------------------------------------

func (s *GatewayServer) searchSymbols(c *gin.Context) {
	var q searchQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	found := s.feed.SearchSymbols(q.Query, q.Exchange, q.Type)
	if q.Limit > 0 && len(found) > q.Limit {
		found = found[:q.Limit]
	}
	c.JSON(http.StatusOK, found)
}

// -----------------------------------------------------------------------------

func (s *GatewayServer) resolveSymbol(c *gin.Context) {
	name := c.Query("symbol")
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol is required"})
		return
	}

	sym, err := s.resolve(c.Request.Context(), name)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, sym)
}

// -----------------------------------------------------------------------------

func (s *GatewayServer) getHistory(c *gin.Context) {
	var q historyQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	sym, err := s.resolve(ctx, q.Symbol)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	period := models.MPeriodParams{From: q.From, To: q.To, CountBack: q.CountBack, FirstDataRequest: q.First}
	res, err := s.feed.GetBars(ctx, sym, q.Resolution, period).Await(ctx)
	if err != nil {
		s.Logger.Warning("History %s %s failed: %v", q.Symbol, q.Resolution, err)
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, res)
}

// -----------------------------------------------------------------------------

func (s *GatewayServer) getHealth(c *gin.Context) {
	s.stateMutex.RLock()
	connections := s.clientsN
	s.stateMutex.RUnlock()

	c.JSON(http.StatusOK, gin.H{
		"status":       "ok",
		"connections":  connections,
		"feed":         s.feed.Status(),
		"markets_open": s.feed.AnyMarketOpen(),
	})
}

// -----------------------------------------------------------------------------

func (s *GatewayServer) resolve(ctx context.Context, name string) (models.MSymbol, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	return s.feed.ResolveSymbol(name).Await(ctx)
}

// -----------------------------------------------------------------------------

func statusFor(err error) int {
	var hfe *helpers.HistoryFetchError
	switch {
	case errors.Is(err, helpers.ErrSymbolNotFound) && !errors.As(err, &hfe):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &hfe):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
