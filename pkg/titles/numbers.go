// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package titles

import "strconv"

type numberKind int

const (
	kindZero numberKind = iota
	kindUnit
	kindTeen
	kindTens
	kindHundred
	kindScale
)

type numberWord struct {
	value int
	kind  numberKind
}

var numberWords = map[string]numberWord{
	"zero":      {0, kindZero},
	"one":       {1, kindUnit},
	"two":       {2, kindUnit},
	"three":     {3, kindUnit},
	"four":      {4, kindUnit},
	"five":      {5, kindUnit},
	"six":       {6, kindUnit},
	"seven":     {7, kindUnit},
	"eight":     {8, kindUnit},
	"nine":      {9, kindUnit},
	"ten":       {10, kindTeen},
	"eleven":    {11, kindTeen},
	"twelve":    {12, kindTeen},
	"thirteen":  {13, kindTeen},
	"fourteen":  {14, kindTeen},
	"fifteen":   {15, kindTeen},
	"sixteen":   {16, kindTeen},
	"seventeen": {17, kindTeen},
	"eighteen":  {18, kindTeen},
	"nineteen":  {19, kindTeen},
	"twenty":    {20, kindTens},
	"thirty":    {30, kindTens},
	"forty":     {40, kindTens},
	"fifty":     {50, kindTens},
	"sixty":     {60, kindTens},
	"seventy":   {70, kindTens},
	"eighty":    {80, kindTens},
	"ninety":    {90, kindTens},
	"hundred":   {100, kindHundred},
	"thousand":  {1000, kindScale},
	"million":   {1000000, kindScale},
}

// canFollow reports whether next extends a number whose last word was prev.
// "twenty one" is one number; "one two" is two.
func canFollow(prev, next numberKind) bool {
	switch prev {
	case kindUnit:
		return next == kindHundred || next == kindScale
	case kindTeen:
		return next == kindHundred || next == kindScale
	case kindTens:
		return next == kindUnit || next == kindHundred || next == kindScale
	case kindHundred:
		return next == kindUnit || next == kindTeen || next == kindTens || next == kindScale
	case kindScale:
		return next == kindUnit || next == kindTeen || next == kindTens
	default:
		return false
	}
}

// numberBuilder accumulates one spelled-out number.
type numberBuilder struct {
	total   int
	current int
	last    numberKind
	words   int
}

func (b *numberBuilder) add(w numberWord) {
	switch w.kind {
	case kindHundred:
		if b.current == 0 {
			b.current = 1
		}
		b.current *= 100
	case kindScale:
		if b.current == 0 {
			b.current = 1
		}
		b.total += b.current * w.value
		b.current = 0
	default:
		b.current += w.value
	}
	b.last = w.kind
	b.words++
}

func (b *numberBuilder) String() string {
	return strconv.Itoa(b.total + b.current)
}

// collapseNumberWords replaces each run of English number words with its
// digits, leaving every other token as it was.
func collapseNumberWords(tokens []string) []string {
	out := make([]string, 0, len(tokens))
	var b *numberBuilder

	flush := func() {
		if b != nil {
			out = append(out, b.String())
			b = nil
		}
	}

	for _, tok := range tokens {
		w, ok := numberWords[tok]
		if !ok {
			flush()
			out = append(out, tok)
			continue
		}
		if b != nil && !canFollow(b.last, w.kind) {
			flush()
		}
		if b == nil {
			b = &numberBuilder{}
		}
		b.add(w)
	}
	flush()

	return out
}
