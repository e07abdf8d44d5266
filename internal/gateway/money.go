package gateway

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Currencies Stripe charges in whole units
var zeroDecimalCurrencies = map[string]bool{
	"BIF": true, "CLP": true, "DJF": true, "GNF": true, "JPY": true, "KMF": true,
	"KRW": true, "MGA": true, "PYG": true, "RWF": true, "UGX": true, "VND": true,
	"VUV": true, "XAF": true, "XOF": true, "XPF": true,
}

func minorExponent(currency string) int32 {
	if zeroDecimalCurrencies[strings.ToUpper(currency)] {
		return 0
	}
	return 2
}

// ToMinorUnits converts a major-unit amount to the gateway's integer unit
func ToMinorUnits(amount decimal.Decimal, currency string) int64 {
	return amount.Shift(minorExponent(currency)).Round(0).IntPart()
}

// FromMinorUnits converts a gateway integer amount back to major units
func FromMinorUnits(units int64, currency string) decimal.Decimal {
	return decimal.NewFromInt(units).Shift(-minorExponent(currency))
}

// formatMajor renders a major-unit amount the way PayPal and Bakong expect it
func formatMajor(amount decimal.Decimal, currency string) string {
	return amount.StringFixed(minorExponent(currency))
}
