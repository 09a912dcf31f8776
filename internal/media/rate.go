// Package media holds the value types shared by detection, profile building
// and graph compilation: rational frame rates, source sequences and detected
// video properties.
package media

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"strings"
)

// ErrInvalidRate is returned for unparseable, zero or negative rates.
var ErrInvalidRate = errors.New("invalid frame rate")

// Rate is an exact rational frame rate. The zero value means "unset".
type Rate struct {
	Num int64
	Den int64
}

// Common broadcast and cinema rates, used for snapping measured or
// abbreviated values (23.976 means 24000/1001).
var CommonRates = []Rate{
	{24000, 1001}, {24, 1}, {25, 1}, {30000, 1001}, {30, 1},
	{48000, 1001}, {48, 1}, {50, 1}, {60000, 1001}, {60, 1},
	{100, 1}, {120000, 1001}, {120, 1},
}

// NewRate returns num/den in lowest terms. Non-positive input yields the zero Rate.
func NewRate(num, den int64) Rate {
	if num <= 0 || den <= 0 {
		return Rate{}
	}
	g := gcd(num, den)
	return Rate{Num: num / g, Den: den / g}
}

// ParseRate accepts integers ("24"), decimals of any precision ("23.976")
// and fractions ("24000/1001", "30000:1001"). Decimals that abbreviate an
// NTSC rate are snapped to the exact fraction.
func ParseRate(s string) (Rate, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ":", "/"))
	r, ok := new(big.Rat).SetString(s)
	if !ok || r.Sign() <= 0 {
		return Rate{}, fmt.Errorf("%w: %q", ErrInvalidRate, s)
	}
	if !r.Num().IsInt64() || !r.Denom().IsInt64() {
		return Rate{}, fmt.Errorf("%w: %q out of range", ErrInvalidRate, s)
	}
	rate := NewRate(r.Num().Int64(), r.Denom().Int64())
	if strings.Contains(s, ".") {
		rate = rate.SnapWithin(0.001)
	}
	return rate, nil
}

// RateFromFloat converts a measured rate, snapping to a common rate within
// tol and otherwise rounding to millihertz.
func RateFromFloat(f, tol float64) Rate {
	if f <= 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return Rate{}
	}
	if c, ok := nearestCommon(f, tol); ok {
		return c
	}
	return NewRate(int64(math.Round(f*1000)), 1000)
}

// IsZero reports whether the rate is unset.
func (r Rate) IsZero() bool { return r.Num == 0 || r.Den == 0 }

// Float returns the rate as frames per second.
func (r Rate) Float() float64 {
	if r.IsZero() {
		return 0
	}
	return float64(r.Num) / float64(r.Den)
}

// String renders "24" for whole rates and "24000/1001" otherwise; both forms
// are accepted by ffmpeg's -framerate and -r.
func (r Rate) String() string {
	if r.IsZero() {
		return "unset"
	}
	if r.Den == 1 {
		return fmt.Sprintf("%d", r.Num)
	}
	return fmt.Sprintf("%d/%d", r.Num, r.Den)
}

// SnapWithin returns the common rate within tol fps of r, or r unchanged.
func (r Rate) SnapWithin(tol float64) Rate {
	if r.IsZero() {
		return r
	}
	if c, ok := nearestCommon(r.Float(), tol); ok {
		return c
	}
	return r
}

// Common reports whether r is one of CommonRates.
func (r Rate) Common() bool {
	for _, c := range CommonRates {
		if c == r {
			return true
		}
	}
	return false
}

// MarshalText renders the rate for JSON and YAML manifests.
func (r Rate) MarshalText() ([]byte, error) {
	if r.IsZero() {
		return []byte(""), nil
	}
	return []byte(r.String()), nil
}

// UnmarshalText parses the output of MarshalText.
func (r *Rate) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*r = Rate{}
		return nil
	}
	v, err := ParseRate(string(b))
	if err != nil {
		return err
	}
	*r = v
	return nil
}

func nearestCommon(f, tol float64) (Rate, bool) {
	best, bestDiff := Rate{}, math.Inf(1)
	for _, c := range CommonRates {
		if d := math.Abs(c.Float() - f); d < bestDiff {
			best, bestDiff = c, d
		}
	}
	return best, bestDiff <= tol
}

func gcd(a, b int64) int64 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
