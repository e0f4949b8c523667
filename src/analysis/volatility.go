package analysis

import "strings"

// Per-tick volatility used by synthetic price generation.
const (
	VolatilityLow    = 0.0002
	VolatilityMedium = 0.001
	VolatilityHigh   = 0.004
)

var cryptoTickers = []string{"BTC", "ETH", "SOL", "XRP", "DOGE", "ADA", "USDT"}

// -----------------------------------------------------------------------------

// VolatilityFor picks a tier by instrument category: forex low, crypto high,
// everything else medium. The ticker is consulted when the type is empty.
func VolatilityFor(symbolType, ticker string) float64 {
	switch strings.ToLower(symbolType) {
	case "forex", "fx":
		return VolatilityLow
	case "crypto":
		return VolatilityHigh
	case "":
	default:
		return VolatilityMedium
	}

	t := strings.ToUpper(ticker)
	for _, c := range cryptoTickers {
		if strings.HasPrefix(t, c) {
			return VolatilityHigh
		}
	}
	if len(t) == 6 && isLetters(t) {
		return VolatilityLow
	}
	return VolatilityMedium
}

func isLetters(s string) bool {
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}
