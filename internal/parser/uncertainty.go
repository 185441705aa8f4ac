/*
PURPOSE:
  Decodes one row of the DREAM statistics table printed at the end of a
  refl1d fit log, e.g.

    1            intensity  1.084(31)  1.0991  1.1000 [  1.062   1.100] [  1.000   1.100]
    2              air rho 0.91(91)e-3 0.00062 0.00006 [ 0.0001  0.0017] [ 0.0000  0.0031]

REQUIREMENTS:
  User-specified:
  - Recover the parameter name, its best value and its absolute uncertainty.
  - "1.084(31)" means 1.084 with an uncertainty of 0.031: the error digits sit
    under the trailing digits of the mean. A shared exponent scales both.

  Implementation-discovered:
  - The error can carry more digits than the mean ("-0.5(12)" is 1.2).
  - Rows are mixed with free text; a mismatch is normal, not an error.

ARCHITECTURE INTEGRATION:
  - Called by: internal/parser.Step for every line.

ERROR HANDLING:
  - DecodeLine returns ok=false for anything that is not a table row.
  - DecodeUncertainty returns an error for malformed tokens.

IMPLEMENTATION RULES:
  - Digit alignment is done in decimal exponents and parsed with strconv,
    so 31e-3 is read exactly as the log wrote it.

USAGE:
  est, ok := parser.DecodeLine(line)

RELATED FILES:
  - internal/parser/parser.go
*/

package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var tableRow = regexp.MustCompile(`^\d+ (.*) ([\d.-]+)\((\d+)\)(e?[\d-]*)\s* [\d.-]+\s* ([\d.-]+)(e?[\d-]*) `)

// Estimate is one decoded row of the statistics table.
type Estimate struct {
	Name        string
	Mean        float64
	Best        float64
	Uncertainty float64
}

// DecodeLine decodes a statistics table row. ok is false when the line is not one.
func DecodeLine(line string) (Estimate, bool) {
	m := tableRow.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return Estimate{}, false
	}
	mean, uncertainty, err := DecodeUncertainty(m[2], m[3], m[4])
	if err != nil {
		return Estimate{}, false
	}
	best, err := strconv.ParseFloat(m[5]+m[6], 64)
	if err != nil {
		return Estimate{}, false
	}
	name := strings.TrimSpace(m[1])
	if name == "" {
		return Estimate{}, false
	}
	return Estimate{Name: name, Mean: mean, Best: best, Uncertainty: uncertainty}, true
}

// DecodeUncertainty turns the tokens of "mean(digits)exponent" into the mean
// value and its absolute uncertainty. exponent is either empty or "e<int>".
func DecodeUncertainty(mean, digits, exponent string) (float64, float64, error) {
	exp := 0
	if exponent != "" {
		e, err := strconv.Atoi(strings.TrimPrefix(exponent, "e"))
		if err != nil {
			return 0, 0, fmt.Errorf("bad exponent %q: %w", exponent, err)
		}
		exp = e
	}
	if digits == "" {
		return 0, 0, fmt.Errorf("missing error digits for %q", mean)
	}
	for _, c := range digits {
		if c < '0' || c > '9' {
			return 0, 0, fmt.Errorf("bad error digits %q", digits)
		}
	}

	value, err := strconv.ParseFloat(fmt.Sprintf("%se%d", mean, exp), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("bad mean %q: %w", mean, err)
	}

	decimals := 0
	if i := strings.IndexByte(mean, '.'); i >= 0 {
		decimals = len(mean) - i - 1
	}
	uncertainty, err := strconv.ParseFloat(fmt.Sprintf("%se%d", digits, exp-decimals), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("bad error digits %q: %w", digits, err)
	}
	return value, uncertainty, nil
}
