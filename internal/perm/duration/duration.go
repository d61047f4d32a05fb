// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PermGate Contributors

// Package duration parses human-friendly expiry spans like "1w2d3h", "30d"
// or "1mo 12h" into time.Duration. Months and years use the civil
// approximations (30 and 365 days) common to permission expiry tooling.
package duration

import (
	"fmt"
	"time"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
	"github.com/samber/oops"
)

var spanLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Int", Pattern: `\d+`},
	// "mo" must precede the single-letter units or "m" would claim it.
	{Name: "Unit", Pattern: `mo|[ywdhms]`},
	{Name: "whitespace", Pattern: `\s+`},
})

type span struct {
	Parts []*part `parser:"@@+"`
}

type part struct {
	Amount int64  `parser:"@Int"`
	Unit   string `parser:"@Unit"`
}

var parser *participle.Parser[span]

func init() {
	var err error
	parser, err = participle.Build[span](participle.Lexer(spanLexer))
	if err != nil {
		panic(fmt.Sprintf("failed to build duration parser: %v", err))
	}
}

var unitLengths = map[string]time.Duration{
	"y":  365 * 24 * time.Hour,
	"mo": 30 * 24 * time.Hour,
	"w":  7 * 24 * time.Hour,
	"d":  24 * time.Hour,
	"h":  time.Hour,
	"m":  time.Minute,
	"s":  time.Second,
}

// Parse converts a span string into a duration. Each unit may appear at
// most once and the total must be positive.
func Parse(text string) (time.Duration, error) {
	sp, err := parser.ParseString("", text)
	if err != nil {
		return 0, oops.Code("INVALID_DURATION").With("input", text).Wrap(err)
	}

	seen := make(map[string]struct{}, len(sp.Parts))
	var total time.Duration
	for _, p := range sp.Parts {
		if _, dup := seen[p.Unit]; dup {
			return 0, oops.Code("INVALID_DURATION").With("input", text).
				Errorf("unit %q appears more than once", p.Unit)
		}
		seen[p.Unit] = struct{}{}

		length := unitLengths[p.Unit]
		add := time.Duration(p.Amount) * length
		if p.Amount != 0 && add/time.Duration(p.Amount) != length {
			return 0, oops.Code("INVALID_DURATION").With("input", text).
				Errorf("duration overflows")
		}
		prev := total
		total += add
		if total < prev {
			return 0, oops.Code("INVALID_DURATION").With("input", text).
				Errorf("duration overflows")
		}
	}

	if total <= 0 {
		return 0, oops.Code("INVALID_DURATION").With("input", text).
			Errorf("duration must be positive")
	}
	return total, nil
}

// Format renders a duration in span notation, largest unit first. Seconds
// are always emitted when everything else is zero.
func Format(d time.Duration) string {
	if d <= 0 {
		return "0s"
	}
	var out string
	for _, u := range []struct {
		name   string
		length time.Duration
	}{
		{"y", unitLengths["y"]},
		{"mo", unitLengths["mo"]},
		{"w", unitLengths["w"]},
		{"d", unitLengths["d"]},
		{"h", unitLengths["h"]},
		{"m", unitLengths["m"]},
		{"s", unitLengths["s"]},
	} {
		if n := d / u.length; n > 0 {
			out += fmt.Sprintf("%d%s", n, u.name)
			d -= n * u.length
		}
	}
	if out == "" {
		return "0s"
	}
	return out
}
