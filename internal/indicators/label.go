package indicators

import (
	"strings"

	"github.com/ajitpratap0/stratforge/internal/variables"
)

// labelPrefix is the short name shown before the parameter list
var labelPrefix = map[Kind]string{
	KindRSI:        "RSI",
	KindMACD:       "MACD",
	KindBollinger:  "BB",
	KindSMA:        "SMA",
	KindEMA:        "EMA",
	KindADX:        "ADX",
	KindATR:        "ATR",
	KindStochastic: "Stoch",
	KindPrice:      "Price",
	KindVolume:     "Volume",
}

// GenerateLabel builds the human-readable label of an indicator, e.g.
// RSI(14) or MACD(12,26,9). Reference parameters render as the variable's
// name from names (or the cached hint when the variable is gone), never as a
// resolved number, so labels do not change when a variable's value does.
// Unknown kinds render as KIND(firstParam). names may be nil.
func GenerateLabel(kind Kind, params Parameters, names variables.Lookup) string {
	if params == nil {
		params = DefaultParameters(kind)
	}

	prefix, known := labelPrefix[kind]
	if !known {
		noteUnknown(kind, "label")
		prefix = strings.ToUpper(string(kind))
		fields := params.Fields()
		if len(fields) == 0 {
			return prefix
		}
		return prefix + "(" + variables.DisplayName(*fields[0].Value, names) + ")"
	}

	switch p := params.(type) {
	case *PriceParams:
		return prefix + "(" + string(p.Source) + ")"
	case *VolumeParams:
		return prefix
	}

	fields := params.Fields()
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = variables.DisplayName(*f.Value, names)
	}
	return prefix + "(" + strings.Join(parts, ",") + ")"
}
