package models

import "strings"

// MSymbol describes one tradable instrument. Immutable once resolved.
type MSymbol struct {
	Ticker               string   `json:"ticker" yaml:"ticker"`
	Exchange             string   `json:"exchange" yaml:"exchange"`
	Type                 string   `json:"type" yaml:"type"` // forex, crypto, stock, index, commodity
	Description          string   `json:"description" yaml:"description,omitempty"`
	PricePrecision       int      `json:"pricePrecision" yaml:"price_precision"`
	SupportedResolutions []string `json:"supportedResolutions" yaml:"supported_resolutions,omitempty"`
	BasePrice            float64  `json:"basePrice,omitempty" yaml:"base_price,omitempty"`
	Timezone             string   `json:"timezone,omitempty" yaml:"timezone,omitempty"`
	Session              string   `json:"session,omitempty" yaml:"session,omitempty"`
}

// FullName returns EXCHANGE:TICKER.
func (s MSymbol) FullName() string {
	if s.Exchange == "" {
		return s.Ticker
	}
	return s.Exchange + ":" + s.Ticker
}

// SupportsResolution reports whether resolution is listed for the symbol.
// An empty list means every resolution is accepted.
func (s MSymbol) SupportsResolution(resolution string) bool {
	if len(s.SupportedResolutions) == 0 {
		return true
	}
	for _, r := range s.SupportedResolutions {
		if strings.EqualFold(r, resolution) {
			return true
		}
	}
	return false
}

// -----------------------------------------------------------------------------

// MDatafeedConfiguration is reported once through OnReady.
type MDatafeedConfiguration struct {
	SupportedResolutions []string `json:"supported_resolutions"`
	Exchanges            []string `json:"exchanges"`
	SymbolTypes          []string `json:"symbols_types"`
	SupportsSearch       bool     `json:"supports_search"`
	SupportsGroupRequest bool     `json:"supports_group_request"`
	SupportsTime         bool     `json:"supports_time"`
}
