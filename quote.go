package optbacktest

import (
	"fmt"
	"math"
)

const kDaysPerYear = 365.0

// OptionQuote is one observed European call: the premium paid for the right to
// buy at Strike, Expiry years from now, while the underlying trades at Spot.
// Rate is the continuously compounded risk-free rate as a decimal (0.05 = 5%).
type OptionQuote struct {
	Spot   float64
	Strike float64
	Expiry float64
	Rate   float64
	Price  float64
}

func NewOptionQuote(
	price float64,
	spot float64,
	strike float64,
	expiry float64,
	rate float64) OptionQuote {

	return OptionQuote{
		Spot:   spot,
		Strike: strike,
		Expiry: expiry,
		Rate:   rate,
		Price:  price,
	}
}

// NewOptionQuoteFromDays converts calendar days to expiry into years using a
// 365 day year.
func NewOptionQuoteFromDays(
	price float64,
	spot float64,
	strike float64,
	days float64,
	rate float64) OptionQuote {

	return NewOptionQuote(price, spot, strike, days/kDaysPerYear, rate)
}

// Valid reports whether the quote can be priced at all. Spot, strike, expiry
// and price must be finite and strictly positive, the rate must be finite.
func (self OptionQuote) Valid() bool {
	for _, v := range []float64{self.Spot, self.Strike, self.Expiry, self.Price} {
		if !isFinite(v) || v <= 0 {
			return false
		}
	}
	return isFinite(self.Rate)
}

// Moneyness is ln(S/K) + rT, the log distance of the forward from the strike.
func (self OptionQuote) Moneyness() float64 {
	return math.Log(self.Spot/self.Strike) + self.Rate*self.Expiry
}

// ImpliedVolatility solves the quote with the default solver.
func (self OptionQuote) ImpliedVolatility() (float64, bool) {
	return ImpliedVolatility(self.Price, self.Spot, self.Strike, self.Expiry,
		self.Rate)
}

// ProbabilityItm is the risk-neutral probability that this call finishes in
// the money when the underlying moves with volatility sigma.
func (self OptionQuote) ProbabilityItm(sigma float64) (float64, bool) {
	return ProbabilityItm(self.Spot, self.Strike, self.Expiry, self.Rate, sigma)
}

func (self OptionQuote) String() string {
	return fmt.Sprintf("C=%.4f S=%.4f K=%.4f T=%.6f r=%.4f",
		self.Price, self.Spot, self.Strike, self.Expiry, self.Rate)
}
