// Package pricing holds the supplier discount codes and the retail rounding rules.
package pricing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var ErrUnknownCode = errors.New("unknown discount code")
var ErrZeroRevenue = errors.New("revenue must not be zero")

// DefaultCode is used when a cost matches no known code.
const DefaultCode = "A"

type discountCode struct {
	code string
	rate decimal.Decimal
}

func rate(factors ...string) decimal.Decimal {
	r := decimal.NewFromInt(1)
	for _, f := range factors {
		r = r.Mul(decimal.RequireFromString(f))
	}
	return r
}

// codes is ordered: CodeFor returns the first match.
var codes = []discountCode{
	{"B", rate("0.6")},
	{"BY", rate("0.6", "0.9")},
	{"BYY", rate("0.6", "0.9", "0.9")},
	{"B15", rate("0.6", "0.85")},
	{"B20", rate("0.6", "0.8")},
	{"B25", rate("0.6", "0.75")},
	{"B25+5", rate("0.6", "0.75", "0.95")},
	{"A", rate("0.5")},
	{"AY", rate("0.5", "0.9")},
	{"A20", rate("0.5", "0.8")},
}

var (
	bracketLow  = decimal.NewFromInt(20)
	bracketMid  = decimal.NewFromInt(50)
	bracketHigh = decimal.NewFromInt(100)
	factor      = decimal.RequireFromString("0.68")
	roundCoarse = decimal.NewFromInt(10)
	roundFine   = decimal.NewFromInt(5)
	cent        = decimal.RequireFromString("0.01")
	hundred     = decimal.NewFromInt(100)
)

// Codes lists the known discount codes in lookup order.
func Codes() []string {
	out := make([]string, len(codes))
	for i, c := range codes {
		out[i] = c.code
	}
	return out
}

func Rate(code string) (decimal.Decimal, error) {
	for _, c := range codes {
		if c.code == code {
			return c.rate, nil
		}
	}
	return decimal.Zero, fmt.Errorf("%w: %q", ErrUnknownCode, code)
}

// Cost is the supplier cost of retail under code, rounded to cents.
func Cost(retail decimal.Decimal, code string) (decimal.Decimal, error) {
	r, err := Rate(code)
	if err != nil {
		return decimal.Zero, err
	}
	return retail.Mul(r).Round(2), nil
}

// CodeFor finds the code that turns retail into cost, or fallback when none does.
func CodeFor(retail, cost decimal.Decimal, fallback string) string {
	target := cost.Round(2)
	for _, c := range codes {
		if retail.Mul(c.rate).Round(2).Equal(target) {
			return c.code
		}
	}
	return fallback
}

// ApplyDiscount derives a retail price from the cost of price at rate. Prices under 20 are returned
// as they are. Otherwise cost/0.68 is rounded up to a multiple of 10 (or 5 between 50 and 100)
// and one cent is taken off.
func ApplyDiscount(price, rate decimal.Decimal) decimal.Decimal {
	if price.LessThan(bracketLow) {
		return price
	}
	step := roundCoarse
	if price.GreaterThanOrEqual(bracketMid) && price.LessThan(bracketHigh) {
		step = roundFine
	}
	base := price.Mul(rate).Div(factor)
	return ceilTo(base, step).Sub(cent)
}

func ceilTo(x, step decimal.Decimal) decimal.Decimal {
	return x.Div(step).Ceil().Mul(step)
}

// Margin is the profit margin in percent, rounded to two places.
func Margin(revenue, cost decimal.Decimal) (decimal.Decimal, error) {
	if revenue.IsZero() {
		return decimal.Zero, ErrZeroRevenue
	}
	return revenue.Sub(cost).Div(revenue).Mul(hundred).Round(2), nil
}

// Quote summarizes a product priced at retail and bought with code.
type Quote struct {
	Retail          string `json:"retail"`
	Code            string `json:"code"`
	Rate            string `json:"rate"`
	Cost            string `json:"cost"`
	RetailMargin    string `json:"retail_margin"`
	SuggestedPrice  string `json:"suggested_price"`
	SuggestedMargin string `json:"suggested_margin"`
}

// NewQuote prices retail under code. An empty code means DefaultCode.
func NewQuote(retail, code string) (*Quote, error) {
	if code == "" {
		code = DefaultCode
	}
	price, err := decimal.NewFromString(retail)
	if err != nil {
		return nil, fmt.Errorf("invalid retail price %q: %w", retail, err)
	}
	r, err := Rate(code)
	if err != nil {
		return nil, err
	}
	cost := price.Mul(r).Round(2)
	retailMargin, err := Margin(price, cost)
	if err != nil {
		return nil, err
	}
	suggested := ApplyDiscount(price, r)
	suggestedMargin, err := Margin(suggested, cost)
	if err != nil {
		return nil, err
	}
	return &Quote{
		Retail:          price.StringFixed(2),
		Code:            code,
		Rate:            r.String(),
		Cost:            cost.StringFixed(2),
		RetailMargin:    retailMargin.StringFixed(2),
		SuggestedPrice:  suggested.StringFixed(2),
		SuggestedMargin: suggestedMargin.StringFixed(2),
	}, nil
}
