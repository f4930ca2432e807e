// Package indicators defines the indicator catalog used by strategy rules:
// typed parameter records per kind, their defaults and editing schema, label
// generation, and evaluation over a price series for previews.
package indicators

import (
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/stratforge/internal/metrics"
)

// Kind identifies an indicator type. The catalog is open: kinds not listed
// below are accepted and handled generically.
type Kind string

const (
	KindRSI        Kind = "rsi"
	KindMACD       Kind = "macd"
	KindBollinger  Kind = "bollinger"
	KindSMA        Kind = "sma"
	KindEMA        Kind = "ema"
	KindADX        Kind = "adx"
	KindATR        Kind = "atr"
	KindStochastic Kind = "stochastic"
	KindPrice      Kind = "price"
	KindVolume     Kind = "volume"
)

var knownKinds = []Kind{
	KindRSI, KindMACD, KindBollinger, KindSMA, KindEMA,
	KindADX, KindATR, KindStochastic, KindPrice, KindVolume,
}

// Kinds returns the built-in kinds in catalog order
func Kinds() []Kind {
	out := make([]Kind, len(knownKinds))
	copy(out, knownKinds)
	return out
}

// IsKnown reports whether kind has dedicated defaults, schema and label
func IsKnown(kind Kind) bool {
	for _, k := range knownKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Normalize lowercases and trims a kind read from user input
func Normalize(kind string) Kind {
	return Kind(strings.ToLower(strings.TrimSpace(kind)))
}

// noteUnknown logs and counts a fallback to generic handling
func noteUnknown(kind Kind, op string) {
	metrics.RecordUnknownIndicatorKind()
	log.Debug().
		Str("kind", string(kind)).
		Str("operation", op).
		Msg("Unknown indicator kind, using generic handling")
}
