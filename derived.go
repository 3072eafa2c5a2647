package optbacktest

import (
	"math"

	"github.com/golang/glog"
)

const kDerivedDecimals = 2

type DerivedStats struct {
	Rows        int
	OtmUpdated  int
	ItmUpdated  int
	ItmYes      int
	ItmMissing  int
	YieldUpdate int
}

// expiryPrice is the underlying price used to settle the row: the spot at
// expiry, then the close at expiry, and as a last resort today's spot.
func expiryPrice(t *OptionsTable, row int) (float64, bool) {
	for _, col := range []string{kColSpotAtExpiry, kColCloseAtExpiry,
		kColUnderlyingSpot} {

		if v, ok := t.Float(row, col); ok && v > 0 {
			return v, true
		}
	}
	return math.NaN(), false
}

// optionPrice is the premium column when present, else the observed price.
func optionPrice(t *OptionsTable, row int) (float64, bool) {
	if v, ok := t.Float(row, kColPremium); ok && v > 0 {
		return v, true
	}
	return ObservedPrice(t, row)
}

func lowPremium(t *OptionsTable, row int) (float64, bool) {
	for _, col := range []string{kColPremiumLow, kColLowPrice, kColClosePrice} {
		if v, ok := t.Float(row, col); ok && v > 0 {
			return v, true
		}
	}
	return math.NaN(), false
}

// RecalculateDerived rewrites the moneyness, settlement and yield columns
// from the raw strike, price and underlying columns.
//
//	otm_pct               = (strike - spot) / spot * 100
//	ITM                   = YES when a call settles at or above the strike
//	                        (a put at or below it)
//	premium_yield_pct     = premium / spot * 100
//	premium_yield_pct_low = premium_low / spot * 100
//	intrinsic_value       = max(0, spot - strike), max(0, strike - spot) for puts
//	time_value            = max(0, premium - intrinsic_value)
//	extrinsic_value       = premium - intrinsic_value
//
// A row missing an input keeps whatever the file had for that output.
func RecalculateDerived(t *OptionsTable) (*OptionsTable, DerivedStats) {
	out := t.Clone()
	stats := DerivedStats{Rows: out.Len()}
	hasType := out.HasColumn(kColOptionType)

	for row := 0; row < out.Len(); row++ {
		strike, hasStrike := out.Float(row, kColStrike)
		spot, hasSpot := out.Float(row, kColUnderlyingSpot)
		hasSpot = hasSpot && spot > 0

		if hasStrike && hasSpot {
			out.SetFloat(row, kColOtmPct, percentOf(strike-spot, spot),
				kDerivedDecimals)
			stats.OtmUpdated++
		}

		put := hasType && isPut(out.Cell(row, kColOptionType))
		if settle, ok := expiryPrice(out, row); ok && hasStrike {
			itm := settle >= strike
			if put {
				itm = settle <= strike
			}
			out.SetCell(row, kColItm, boolCell(itm))
			stats.ItmUpdated++
		} else {
			stats.ItmMissing++
		}
		if yes, ok := parseBoolCell(out.Cell(row, kColItm)); ok && yes {
			stats.ItmYes++
		}

		if !hasSpot {
			continue
		}
		if premium, ok := optionPrice(out, row); ok {
			if !out.HasColumn(kColPremium) || out.Cell(row, kColPremium) == "" {
				out.SetFloat(row, kColPremium, premium, kDefaultDecimals)
			}
			out.SetFloat(row, kColPremiumYieldPct, percentOf(premium, spot),
				kDerivedDecimals)
			stats.YieldUpdate++

			if hasStrike {
				intrinsic := math.Max(0, spot-strike)
				if put {
					intrinsic = math.Max(0, strike-spot)
				}
				out.SetFloat(row, kColIntrinsicValue, intrinsic, kDefaultDecimals)
				out.SetFloat(row, kColTimeValue, math.Max(0, premium-intrinsic),
					kDefaultDecimals)
				out.SetFloat(row, kColExtrinsicValue, premium-intrinsic,
					kDefaultDecimals)
			}
		}
		if low, ok := lowPremium(out, row); ok {
			out.SetFloat(row, kColPremiumYieldLow, percentOf(low, spot),
				kDerivedDecimals)
		}
	}
	glog.V(1).Infof("Derived fields: %+v", stats)
	return out, stats
}
