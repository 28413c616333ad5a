package payment

import (
	"math"
	"strings"
)

// zeroDecimal lists the currencies whose minor unit is the major unit.
var zeroDecimal = map[string]bool{
	"bif": true, "clp": true, "djf": true, "gnf": true,
	"jpy": true, "kmf": true, "krw": true, "mga": true,
	"pyg": true, "rwf": true, "ugx": true, "vnd": true,
	"vuv": true, "xaf": true, "xof": true, "xpf": true,
}

func IsZeroDecimal(currency string) bool {
	return zeroDecimal[strings.ToLower(currency)]
}

// MaxMinor is the largest charge, in minor units, the processor accepts.
const MaxMinor int64 = 99999999

// Amount is a decimal major-unit amount as entered by a donor.
type Amount struct {
	Value    float64
	Currency string
}

// Valid rejects non-positive values and anything above MaxMinor. The bound is
// checked in major units first so Minor never converts an out of range float.
func (a Amount) Valid() bool {
	if math.IsNaN(a.Value) || math.IsInf(a.Value, 0) || a.Value <= 0 {
		return false
	}
	if a.Value > FromMinor(MaxMinor, a.Currency) {
		return false
	}
	minor := a.Minor()
	return minor > 0 && minor <= MaxMinor
}

// Minor converts to the processor's integer representation.
func (a Amount) Minor() int64 {
	if IsZeroDecimal(a.Currency) {
		return int64(math.Round(a.Value))
	}
	return int64(math.Round(a.Value * 100))
}

// FromMinor converts a processor amount back to major units.
func FromMinor(minor int64, currency string) float64 {
	if IsZeroDecimal(currency) {
		return float64(minor)
	}
	return float64(minor) / 100
}
