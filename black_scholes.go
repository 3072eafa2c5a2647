package optbacktest

import (
	"math"

	"github.com/golang/glog"
	"gonum.org/v1/gonum/stat/distuv"
)

const (
	kDefaultMaxIterations   = 100
	kDefaultTolerance       = 1e-8
	kDefaultAcceptTolerance = 1e-4
	kDefaultMinSigma        = 1e-6
	kDefaultMaxSigma        = 10.0
	kDefaultMaxPriceToSpot  = 1.10
	kDefaultMinVega         = 1e-10

	kMinInitialSigma = 0.01
	kMaxInitialSigma = 5.0
	kFallbackStep    = 0.10
)

// IvOutcome tells why an implied volatility solve produced, or did not
// produce, a result. Only IvSolved carries a usable sigma.
type IvOutcome int

const (
	IvSolved IvOutcome = iota
	IvInvalidInput
	IvImplausiblePrice
	IvOutOfBounds
	IvNoConvergence
)

var ivOutcomeNames = []string{
	"solved",
	"invalid_input",
	"implausible_price",
	"out_of_bounds",
	"no_convergence",
}

func AllIvOutcomes() []IvOutcome {
	return []IvOutcome{IvSolved, IvInvalidInput, IvImplausiblePrice,
		IvOutOfBounds, IvNoConvergence}
}

func (self IvOutcome) String() string {
	if self < 0 || int(self) >= len(ivOutcomeNames) {
		return "unknown"
	}
	return ivOutcomeNames[self]
}

type IvResult struct {
	Sigma      float64
	Iterations int
	Outcome    IvOutcome
}

func (self IvResult) Ok() bool {
	return self.Outcome == IvSolved
}

// IvSolver inverts the Black-Scholes call price with Newton-Raphson.
//
// Tolerance and AcceptTolerance are relative to the observed price: the loop
// stops once |model - observed| <= Tolerance*observed, and a result is only
// handed out when |model - observed| <= AcceptTolerance*observed. Every
// iterate is kept inside [MinSigma, MaxSigma]. Quotes priced above
// MaxPriceToSpot times the spot are rejected without iterating.
type IvSolver struct {
	MaxIterations   int
	Tolerance       float64
	AcceptTolerance float64
	MinSigma        float64
	MaxSigma        float64
	MaxPriceToSpot  float64
	MinVega         float64
}

func NewIvSolver() *IvSolver {
	return &IvSolver{
		MaxIterations:   kDefaultMaxIterations,
		Tolerance:       kDefaultTolerance,
		AcceptTolerance: kDefaultAcceptTolerance,
		MinSigma:        kDefaultMinSigma,
		MaxSigma:        kDefaultMaxSigma,
		MaxPriceToSpot:  kDefaultMaxPriceToSpot,
		MinVega:         kDefaultMinVega,
	}
}

var defaultIvSolver = NewIvSolver()

func normCdf(x float64) float64 {
	return distuv.UnitNormal.CDF(x)
}

func normPdf(x float64) float64 {
	return distuv.UnitNormal.Prob(x)
}

// d1d2 returns the two standardized moneyness terms of the Black-Scholes
// formula. Callers guarantee S, K, T and sigma are positive.
func d1d2(S, K, T, r, sigma float64) (float64, float64) {
	a := sigma * math.Sqrt(T)
	d1 := (math.Log(S/K) + (r+sigma*sigma/2)*T) / a
	return d1, d1 - a
}

// BlackScholesCall is the fair value of a European call on a non-dividend
// paying underlying:
//
//	C = S*N(d1) - K*exp(-rT)*N(d2)
//
// With no time or no volatility left the call is worth its discounted
// intrinsic value. Non-positive spot or strike yields NaN.
func BlackScholesCall(S, K, T, r, sigma float64) float64 {
	if S <= 0 || K <= 0 {
		return math.NaN()
	}
	if T <= 0 || sigma <= 0 {
		return math.Max(S-K*math.Exp(-r*math.Max(T, 0)), 0)
	}
	d1, d2 := d1d2(S, K, T, r, sigma)
	return S*normCdf(d1) - K*math.Exp(-r*T)*normCdf(d2)
}

// Vega is dC/dsigma = S*sqrt(T)*N'(d1), expressed per unit of volatility
// (not per percentage point). It is zero when the price no longer depends on
// sigma.
func Vega(S, K, T, r, sigma float64) float64 {
	if S <= 0 || K <= 0 || T <= 0 || sigma <= 0 {
		return 0
	}
	d1, _ := d1d2(S, K, T, r, sigma)
	return S * math.Sqrt(T) * normPdf(d1)
}

// ImpliedVolatility returns the sigma that reprices the call at C, or false
// when no trustworthy sigma exists.
func ImpliedVolatility(C, S, K, T, r float64) (float64, bool) {
	result := defaultIvSolver.Solve(NewOptionQuote(C, S, K, T, r))
	if !result.Ok() {
		return math.NaN(), false
	}
	return result.Sigma, true
}

// ProbabilityItm is N(d2), the risk-neutral probability that the call expires
// with S > K.
func ProbabilityItm(S, K, T, r, sigma float64) (float64, bool) {
	for _, v := range []float64{S, K, T, r, sigma} {
		if !isFinite(v) {
			return math.NaN(), false
		}
	}
	if S <= 0 || K <= 0 || T <= 0 || sigma <= 0 {
		return math.NaN(), false
	}
	_, d2 := d1d2(S, K, T, r, sigma)
	p := normCdf(d2)
	if math.IsNaN(p) {
		return math.NaN(), false
	}
	return math.Min(math.Max(p, 0), 1), true
}

// Solve runs the full solver and reports how it ended.
func (self *IvSolver) Solve(quote OptionQuote) IvResult {
	if !quote.Valid() {
		glog.V(3).Info("IV input rejected. ", quote)
		return IvResult{Sigma: math.NaN(), Iterations: 0, Outcome: IvInvalidInput}
	}
	if quote.Price > self.MaxPriceToSpot*quote.Spot {
		glog.V(3).Info("IV price implausible for spot. ", quote)
		return IvResult{
			Sigma:      math.NaN(),
			Iterations: 0,
			Outcome:    IvImplausiblePrice,
		}
	}

	S, K, T, r, C := quote.Spot, quote.Strike, quote.Expiry, quote.Rate,
		quote.Price

	sigma := self.initialGuess(quote)
	price := BlackScholesCall(S, K, T, r, sigma)
	iterations := 0
	for iterations < self.MaxIterations &&
		!(math.Abs(price-C) <= self.Tolerance*C) {

		sigma = self.step(quote, sigma, price)
		price = BlackScholesCall(S, K, T, r, sigma)
		iterations++
	}

	outcome := self.accept(quote, sigma, price)
	glog.V(3).Infof("IV %s after %d iterations sigma=%g. %s",
		outcome, iterations, sigma, quote)
	if outcome != IvSolved {
		sigma = math.NaN()
	}
	return IvResult{Sigma: sigma, Iterations: iterations, Outcome: outcome}
}

// initialGuess starts from the Brenner-Subrahmanyam ATM approximation. For
// out of the money calls that guess sits far below the root, so it is raised
// to the inflection point of C(sigma), from where Newton converges
// monotonically.
func (self *IvSolver) initialGuess(quote OptionQuote) float64 {
	sigma := math.Sqrt(2*math.Pi/quote.Expiry) * quote.Price / quote.Spot
	if quote.Strike > quote.Spot {
		inflection := math.Sqrt(2 * math.Abs(quote.Moneyness()) / quote.Expiry)
		sigma = math.Max(sigma, inflection)
	}
	if !isFinite(sigma) {
		sigma = kMinInitialSigma
	}
	return math.Min(math.Max(sigma, kMinInitialSigma), kMaxInitialSigma)
}

func (self *IvSolver) step(quote OptionQuote, sigma, price float64) float64 {
	diff := price - quote.Price
	vega := Vega(quote.Spot, quote.Strike, quote.Expiry, quote.Rate, sigma)

	var next float64
	if !isFinite(vega) || vega < self.MinVega {
		// Flat region: Newton would shoot off, walk proportionally instead.
		if diff > 0 {
			next = sigma * (1 - kFallbackStep)
		} else {
			next = sigma * (1 + kFallbackStep)
		}
	} else {
		next = sigma - diff/vega
	}
	return self.clamp(sigma, next)
}

func (self *IvSolver) clamp(sigma, next float64) float64 {
	if math.IsNaN(next) || next <= self.MinSigma {
		// Overshot below zero; halve instead of parking at the floor where
		// vega vanishes.
		return math.Max(sigma/2, self.MinSigma)
	}
	return math.Min(next, self.MaxSigma)
}

func (self *IvSolver) accept(quote OptionQuote, sigma, price float64) IvOutcome {
	C := quote.Price
	if isFinite(sigma) && isFinite(price) &&
		math.Abs(price-C) <= self.AcceptTolerance*C &&
		sigma > 0 && sigma <= self.MaxSigma {
		return IvSolved
	}
	if sigma >= self.MaxSigma || sigma <= self.MinSigma ||
		C <= CallLowerBound(quote) || C >= quote.Spot {
		return IvOutOfBounds
	}
	return IvNoConvergence
}

// CallLowerBound is the no-arbitrage floor max(S - K*exp(-rT), 0). No finite
// volatility prices a call below it, nor at or above the spot.
func CallLowerBound(quote OptionQuote) float64 {
	return math.Max(quote.Spot-quote.Strike*math.Exp(-quote.Rate*quote.Expiry), 0)
}
