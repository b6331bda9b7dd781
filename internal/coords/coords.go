// Package coords converts EXIF angular GPS tags into signed decimal degrees.
package coords

import (
	"strconv"
	"strings"

	"github.com/bstardust/photo-gps-resolver/pkg/common"
)

// Rational is one EXIF rational component. A whole number has Den == 1.
type Rational struct {
	Num int64
	Den int64
}

// Whole returns n as a rational with an implicit denominator
func Whole(n int64) Rational {
	return Rational{Num: n, Den: 1}
}

// Float returns the value of r, failing on a zero denominator
func (r Rational) Float() (float64, error) {
	if r.Den == 0 {
		return 0, common.NewCoordinateError("zero denominator in %d/%d", r.Num, r.Den)
	}
	return float64(r.Num) / float64(r.Den), nil
}

func (r Rational) String() string {
	if r.Den == 1 {
		return strconv.FormatInt(r.Num, 10)
	}
	return strconv.FormatInt(r.Num, 10) + "/" + strconv.FormatInt(r.Den, 10)
}

// Angle is a raw degrees/minutes/seconds triple as stored in EXIF
type Angle []Rational

func (a Angle) String() string {
	parts := make([]string, len(a))
	for i, r := range a {
		parts[i] = r.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// ParseAngle parses textual angles such as "45/1, 30/1, 0/1", "[45, 30, 0.5]"
// or the decimal-comma form "52,00000,50,00000,34,01180" some phones write.
// Components without a denominator are whole numbers or decimals.
func ParseAngle(s string) (Angle, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")

	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
	if len(fields) == 6 && !strings.ContainsAny(s, " \t/.") {
		fields = []string{
			fields[0] + "." + fields[1],
			fields[2] + "." + fields[3],
			fields[4] + "." + fields[5],
		}
	}
	if len(fields) != 3 {
		return nil, common.NewCoordinateError("expected 3 components, got %d in %q", len(fields), s)
	}

	angle := make(Angle, 0, 3)
	for _, f := range fields {
		r, err := parseRational(f)
		if err != nil {
			return nil, err
		}
		angle = append(angle, r)
	}
	return angle, nil
}

func parseRational(s string) (Rational, error) {
	if whole, frac, ok := strings.Cut(s, "."); ok {
		return parseDecimal(s, whole, frac)
	}

	num, den, hasDen := strings.Cut(s, "/")
	n, err := strconv.ParseInt(num, 10, 64)
	if err != nil {
		return Rational{}, common.NewCoordinateError("bad numerator %q", s)
	}
	if !hasDen {
		return Whole(n), nil
	}
	d, err := strconv.ParseInt(den, 10, 64)
	if err != nil {
		return Rational{}, common.NewCoordinateError("bad denominator %q", s)
	}
	return Rational{Num: n, Den: d}, nil
}

func parseDecimal(s, whole, frac string) (Rational, error) {
	if len(frac) == 0 || len(frac) > 9 || strings.ContainsAny(frac, "+-") {
		return Rational{}, common.NewCoordinateError("bad decimal %q", s)
	}
	n, err := strconv.ParseInt(whole+frac, 10, 64)
	if err != nil {
		return Rational{}, common.NewCoordinateError("bad decimal %q", s)
	}
	den := int64(1)
	for range frac {
		den *= 10
	}
	return Rational{Num: n, Den: den}, nil
}

// ToDecimal converts an angle and its hemisphere reference (N, S, E or W)
// to decimal degrees, negative for S and W.
func ToDecimal(angle Angle, ref string) (float64, error) {
	if len(angle) != 3 {
		return 0, common.NewCoordinateError("expected 3 components, got %d", len(angle))
	}

	var negative bool
	switch strings.ToUpper(strings.TrimSpace(ref)) {
	case "N", "E":
	case "S", "W":
		negative = true
	default:
		return 0, common.NewCoordinateError("unknown hemisphere reference %q", ref)
	}

	var dd float64
	for i, div := range [3]float64{1, 60, 3600} {
		v, err := angle[i].Float()
		if err != nil {
			return 0, err
		}
		dd += v / div
	}

	if negative {
		return -dd, nil
	}
	return dd, nil
}
