// Package levels maps cumulative XP to levels using an ordered threshold table.
package levels

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrInvalidTable is returned when thresholds do not form a usable level table.
var ErrInvalidTable = errors.New("invalid level table")

// defaultThresholds is the built-in 25-level table.
var defaultThresholds = []int64{
	0, 100, 250, 450, 700,
	1000, 1400, 1900, 2500, 3200,
	4000, 5000, 6200, 7600, 9200,
	11000, 13000, 15500, 18500, 22000,
	26000, 30500, 35500, 41000, 47000,
}

// Table holds the minimum cumulative XP of every level.
// thresholds[i] is the XP needed to be at level i+1.
type Table struct {
	thresholds []int64
}

// Progress describes how far a user is into their current level band.
type Progress struct {
	Current    int64   `json:"current"`
	Needed     int64   `json:"needed"`
	Percentage float64 `json:"percentage"`
}

// NewTable validates thresholds and builds a table from a copy of them.
// The first threshold must be 0 and every following one strictly greater.
func NewTable(thresholds []int64) (*Table, error) {
	if len(thresholds) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 thresholds, got %d", ErrInvalidTable, len(thresholds))
	}
	if thresholds[0] != 0 {
		return nil, fmt.Errorf("%w: first threshold must be 0, got %d", ErrInvalidTable, thresholds[0])
	}
	for i := 1; i < len(thresholds); i++ {
		if thresholds[i] <= thresholds[i-1] {
			return nil, fmt.Errorf("%w: threshold %d (%d) must exceed threshold %d (%d)",
				ErrInvalidTable, i, thresholds[i], i-1, thresholds[i-1])
		}
	}

	t := make([]int64, len(thresholds))
	copy(t, thresholds)
	return &Table{thresholds: t}, nil
}

// DefaultTable returns the built-in 25-level table.
func DefaultTable() *Table {
	t, err := NewTable(defaultThresholds)
	if err != nil {
		panic(err)
	}
	return t
}

// FromConfig returns the configured table, or the default one when thresholds is empty.
func FromConfig(thresholds []int64) (*Table, error) {
	if len(thresholds) == 0 {
		return DefaultTable(), nil
	}
	return NewTable(thresholds)
}

// Level returns the highest level whose threshold xp reaches. XP past the last
// threshold stays at the last level; negative XP is level 1.
func (t *Table) Level(xp int64) int {
	// first index whose threshold exceeds xp
	idx := sort.Search(len(t.thresholds), func(i int) bool {
		return t.thresholds[i] > xp
	})
	if idx == 0 {
		return 1
	}
	return idx
}

// Progress reports XP earned inside the level band and the band width.
// At the max level the width of the last band is used. Current is clamped to
// zero when xp is below the level's threshold.
func (t *Table) Progress(xp int64, level int) Progress {
	level = t.clampLevel(level)
	floor := t.thresholds[level-1]

	var needed int64
	if level < len(t.thresholds) {
		needed = t.thresholds[level] - floor
	} else {
		n := len(t.thresholds)
		needed = t.thresholds[n-1] - t.thresholds[n-2]
	}

	current := xp - floor
	if current < 0 {
		current = 0
	}

	pct := float64(current) / float64(needed) * 100
	pct = math.Min(pct, 100)

	return Progress{Current: current, Needed: needed, Percentage: pct}
}

// MaxLevel is the highest reachable level.
func (t *Table) MaxLevel() int {
	return len(t.thresholds)
}

// Threshold returns the XP required for level, clamped to the table range.
func (t *Table) Threshold(level int) int64 {
	return t.thresholds[t.clampLevel(level)-1]
}

// Thresholds returns a copy of the table.
func (t *Table) Thresholds() []int64 {
	out := make([]int64, len(t.thresholds))
	copy(out, t.thresholds)
	return out
}

func (t *Table) clampLevel(level int) int {
	if level < 1 {
		return 1
	}
	if level > len(t.thresholds) {
		return len(t.thresholds)
	}
	return level
}
