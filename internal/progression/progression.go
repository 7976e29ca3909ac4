// Package progression maps accumulated XP onto the configurable level table.
//
// All functions are pure; the level table is passed in by the caller so a
// settings update takes effect on the next call.
package progression

import (
	"fmt"

	"github.com/gem-ledger/internal/models"
)

// LevelOf returns the highest level whose XPNeeded is at most xp.
// An empty table yields level 1.
func LevelOf(xp int64, levels []models.LevelRequirement) int {
	level := 1
	for _, req := range levels {
		if xp >= req.XPNeeded && req.Level > level {
			level = req.Level
		}
	}
	return level
}

// NextThreshold returns the XP needed for level+1, or the top entry's XPNeeded
// when level is already the highest defined level.
func NextThreshold(level int, levels []models.LevelRequirement) int64 {
	if len(levels) == 0 {
		return 0
	}
	for _, req := range levels {
		if req.Level == level+1 {
			return req.XPNeeded
		}
	}
	return levels[len(levels)-1].XPNeeded
}

// Progress returns xp as a fraction of the next threshold, clamped to [0,1]
func Progress(xp int64, level int, levels []models.LevelRequirement) float64 {
	next := NextThreshold(level, levels)
	if next <= 0 {
		return 1
	}
	p := float64(xp) / float64(next)
	switch {
	case p < 0:
		return 0
	case p > 1:
		return 1
	}
	return p
}

// BonusesBetween sums the bonuses of levels in (from, to]
func BonusesBetween(from, to int, levels []models.LevelRequirement) int64 {
	var total int64
	for _, req := range levels {
		if req.Level > from && req.Level <= to {
			total += req.Bonus
		}
	}
	return total
}

// ValidationError describes the first violated constraint of a level table
type ValidationError struct {
	Index  int
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("levels[%d]: %s", e.Index, e.Reason)
}

// Validate checks that the table starts at level 1 with 0 XP, has consecutive
// levels, strictly increasing thresholds and non-negative bonuses.
func Validate(levels []models.LevelRequirement) error {
	if len(levels) == 0 {
		return &ValidationError{Index: 0, Reason: "at least one level is required"}
	}
	for i, req := range levels {
		if req.Bonus < 0 {
			return &ValidationError{Index: i, Reason: "bonus must not be negative"}
		}
		if i == 0 {
			if req.Level != 1 || req.XPNeeded != 0 {
				return &ValidationError{Index: 0, Reason: "first level must be 1 with xpNeeded 0"}
			}
			continue
		}
		prev := levels[i-1]
		if req.Level != prev.Level+1 {
			return &ValidationError{Index: i, Reason: fmt.Sprintf("expected level %d, got %d", prev.Level+1, req.Level)}
		}
		if req.XPNeeded <= prev.XPNeeded {
			return &ValidationError{Index: i, Reason: "xpNeeded must be strictly increasing"}
		}
	}
	return nil
}
