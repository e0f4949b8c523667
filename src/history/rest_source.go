package history

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"market-feed/src/interfaces"
	"market-feed/src/logger"
	"market-feed/src/models"
)

// RestSource queries a histo-style REST endpoint taking fsym, tsym,
// resolution, limit and toTs.
type RestSource struct {
	BaseURL string
	TSym    string
	Net     interfaces.INetworkManager
	Logger  *logger.Logger
}

// -----------------------------------------------------------------------------

func NewRestSource(cfg models.MHistoryConfig, net interfaces.INetworkManager, log *logger.Logger) *RestSource {
	return &RestSource{BaseURL: cfg.RestURL, TSym: cfg.TSym, Net: net, Logger: log}
}

func (s *RestSource) Name() string {
	return "rest"
}

// -----------------------------------------------------------------------------

func (s *RestSource) FetchPage(ctx context.Context, req models.MHistoryPageRequest) (models.MHistoryPage, error) {
	params := map[string]string{
		"fsym":       req.Symbol.Ticker,
		"tsym":       s.TSym,
		"resolution": req.Resolution,
		"limit":      strconv.Itoa(req.Limit),
	}
	if req.ToTs > 0 {
		params["toTs"] = strconv.FormatInt(req.ToTs, 10)
	}

	body, err := s.Net.Get(ctx, s.BaseURL, params)
	if err != nil {
		return models.MHistoryPage{}, err
	}

	var page models.MHistoryPage
	if err := json.Unmarshal(body, &page); err != nil {
		return models.MHistoryPage{}, fmt.Errorf("decode history page: %w", err)
	}
	if page.Response == "Error" {
		return page, fmt.Errorf("history source error: %s", page.Message)
	}

	s.Logger.Debug("Page %s %s: %d bars [%d, %d]", req.Symbol.Ticker, req.Resolution, len(page.Data), page.TimeFrom, page.TimeTo)
	return page, nil
}
