package tier

import (
	"fmt"
	"strings"
)

// Tier is a membership level. Levels are totally ordered; Public is the lowest.
type Tier string

const (
	Public    Tier = "public"
	Student   Tier = "student"
	Associate Tier = "associate"
	Full      Tier = "full"
	Fellow    Tier = "fellow"
)

var ranks = map[Tier]int{
	Public:    0,
	Student:   1,
	Associate: 2,
	Full:      3,
	Fellow:    4,
}

// All returns every tier from lowest to highest.
func All() []Tier {
	return []Tier{Public, Student, Associate, Full, Fellow}
}

// Rank returns the position of t in the hierarchy. Unknown tiers rank below Public.
func Rank(t Tier) int {
	if r, ok := ranks[t]; ok {
		return r
	}
	return -1
}

// IsAtLeast reports whether actual ranks at or above required. An unknown required
// tier is never satisfied.
func IsAtLeast(actual, required Tier) bool {
	if !required.Valid() {
		return false
	}
	return Rank(actual) >= Rank(required)
}

// Valid reports whether t is one of the known tiers.
func (t Tier) Valid() bool {
	_, ok := ranks[t]
	return ok
}

func (t Tier) String() string {
	return string(t)
}

// Parse normalises s into a Tier.
func Parse(s string) (Tier, error) {
	t := Tier(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown membership tier %q", s)
	}
	return t, nil
}
