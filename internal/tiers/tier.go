package tiers

import (
	"math"
	"strconv"
	"strings"
)

// FallbackLimit applies when no tier ceiling exceeds the author's karma.
const FallbackLimit = 4

// Tier allows Limit posts per rolling window to authors whose karma is
// strictly below MaxKarma. MaxKarma may be +Inf.
type Tier struct {
	MaxKarma float64 `json:"max_karma"`
	Limit    int     `json:"limit"`
}

func (t Tier) Unbounded() bool {
	return math.IsInf(t.MaxKarma, 1)
}

// Table is an ordered tier list. It is scanned in load order.
type Table struct {
	tiers []Tier
}

func NewTable(tiers []Tier) Table {
	cp := make([]Tier, len(tiers))
	copy(cp, tiers)
	return Table{tiers: cp}
}

// DefaultTable is the staircase used when no valid tier document exists:
// under 250 karma one post, under 500 two, otherwise four.
func DefaultTable() Table {
	return NewTable([]Tier{
		{MaxKarma: 250, Limit: 1},
		{MaxKarma: 500, Limit: 2},
		{MaxKarma: math.Inf(1), Limit: 4},
	})
}

// LimitFor returns the limit of the first tier whose ceiling exceeds karma.
func (t Table) LimitFor(karma int64) int {
	k := float64(karma)
	for _, tier := range t.tiers {
		if k < tier.MaxKarma {
			return tier.Limit
		}
	}
	return FallbackLimit
}

func (t Table) Tiers() []Tier {
	cp := make([]Tier, len(t.tiers))
	copy(cp, t.tiers)
	return cp
}

func (t Table) Len() int {
	return len(t.tiers)
}

// parseCeiling accepts the spellings of an unbounded ceiling seen in tier
// documents in addition to plain numbers.
func parseCeiling(raw string) (float64, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "~", "null", "inf", ".inf", "+inf", "+.inf", "infinity", "none":
		return math.Inf(1), true
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}
