package grpc_control

import (
	"context"
	"fmt"
	"strings"

	"market-feed/src/config"
	"market-feed/src/interfaces"
	"market-feed/src/logger"
	"market-feed/src/models"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Feed is the slice of the datafeed adapter the control plane drives.
type Feed interface {
	interfaces.IFeedController
	AnyMarketOpen() bool
}

// SymbolCatalogue accepts symbols at runtime. *datafeed.Registry satisfies it.
type SymbolCatalogue interface {
	Add(symbols ...models.MSymbol) int
	Symbols() []models.MSymbol
}

// ControlService implements the FeedControlServer interface
type ControlService struct {
	UnimplementedFeedControlServer
	Config     *config.Config
	ConfigPath string
	Feed       Feed
	Registry   SymbolCatalogue
	Store      interfaces.IBarStore // optional
	Logger     *logger.Logger
}

// NewControlService creates a new instance of ControlService
func NewControlService(
	cfg *config.Config,
	cfgPath string,
	feed Feed,
	registry SymbolCatalogue,
	store interfaces.IBarStore,
	log *logger.Logger,
) *ControlService {
	return &ControlService{
		Config:     cfg,
		ConfigPath: cfgPath,
		Feed:       feed,
		Registry:   registry,
		Store:      store,
		Logger:     log,
	}
}

// -----------------------------------------------------------------------------

func (s *ControlService) GetStatus(ctx context.Context, req *Empty) (*StatusResponse, error) {
	st := s.Feed.Status()
	streams := st.Streams
	if streams == nil {
		streams = []models.MStreamStatus{}
	}
	return &StatusResponse{
		State:       st.State,
		Attempts:    int32(st.Attempts),
		Streams:     streams,
		MarketsOpen: s.Feed.AnyMarketOpen(),
	}, nil
}

// -----------------------------------------------------------------------------

// Reconnect resets an exhausted connection. A failed dial is reported in the
// response body, not as an RPC error.
func (s *ControlService) Reconnect(ctx context.Context, req *Empty) (*ControlResponse, error) {
	s.Logger.Info("gRPC: manual reconnect requested")

	if err := s.Feed.Reconnect(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, status.FromContextError(ctx.Err()).Err()
		}
		s.Logger.Error("gRPC: reconnect failed: %v", err)
		return &ControlResponse{
			Success:      false,
			Message:      fmt.Sprintf("Reconnect failed: %v", err),
			CurrentState: s.Feed.Status().State,
		}, nil
	}

	return &ControlResponse{
		Success:      true,
		Message:      "Reconnected",
		CurrentState: s.Feed.Status().State,
	}, nil
}

// -----------------------------------------------------------------------------

func (s *ControlService) ListSymbols(ctx context.Context, req *Empty) (*ListSymbolsResponse, error) {
	return &ListSymbolsResponse{Symbols: s.Registry.Symbols()}, nil
}

// -----------------------------------------------------------------------------

// AddSymbols extends the catalogue, records the new symbols in the store and
// persists them to the config file when one is set.
func (s *ControlService) AddSymbols(ctx context.Context, req *AddSymbolsRequest) (*UpdateSymbolsResponse, error) {
	if len(req.Symbols) == 0 {
		return nil, status.Error(codes.InvalidArgument, "symbols list cannot be empty")
	}
	for i, sym := range req.Symbols {
		if sym.Ticker == "" {
			return nil, status.Errorf(codes.InvalidArgument, "symbol %d must have a ticker", i)
		}
		if sym.PricePrecision < 0 {
			return nil, status.Errorf(codes.InvalidArgument, "symbol '%s' has negative price precision", sym.Ticker)
		}
	}

	known := make(map[string]struct{})
	for _, sym := range s.Registry.Symbols() {
		known[strings.ToUpper(sym.FullName())] = struct{}{}
	}
	var fresh []models.MSymbol
	for _, sym := range req.Symbols {
		key := strings.ToUpper(sym.FullName())
		if _, ok := known[key]; ok {
			continue
		}
		known[key] = struct{}{}
		fresh = append(fresh, sym)
	}

	if len(fresh) == 0 {
		return &UpdateSymbolsResponse{
			Success:     true,
			Message:     "All symbols already known",
			SymbolCount: int32(len(s.Registry.Symbols())),
		}, nil
	}

	added := s.Registry.Add(fresh...)

	if s.Store != nil {
		if err := s.Store.RegisterSymbols(fresh); err != nil {
			s.Logger.Error("gRPC: failed to store symbols: %v", err)
			return &UpdateSymbolsResponse{
				Success:     false,
				Message:     fmt.Sprintf("Symbols added but not stored: %v", err),
				SymbolCount: int32(len(s.Registry.Symbols())),
			}, nil
		}
	}

	if s.Config != nil {
		s.Config.Symbols = append(s.Config.Symbols, fresh...)
		if s.ConfigPath != "" {
			if err := s.Config.Save(s.ConfigPath); err != nil {
				s.Logger.Error("gRPC: failed to persist config: %v", err)
			}
		}
	}

	total := len(s.Registry.Symbols())
	s.Logger.Info("gRPC: AddSymbols added %d symbols. Count: %d", added, total)
	return &UpdateSymbolsResponse{
		Success:     true,
		Message:     fmt.Sprintf("Added %d symbols", added),
		SymbolCount: int32(total),
	}, nil
}
