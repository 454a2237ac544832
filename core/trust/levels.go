// Package trust implements the six-level graduated-autonomy store: manual
// assignment, scoped lookup, and one-directional time decay.
package trust

import "fmt"

// Level is an ordinal trust grade in [LevelMin, LevelMax].
type Level int

const (
	Observer        Level = 0
	Monitor         Level = 1
	Suggest         Level = 2
	ActWithApproval Level = 3
	ActAndReport    Level = 4
	Autonomous      Level = 5
)

// LevelMin is the floor every effective level decays toward and never
// crosses.
const LevelMin Level = Observer

// LevelMax is the highest assignable level.
const LevelMax Level = Autonomous

var levelNames = map[Level]string{
	Observer:        "Observer",
	Monitor:         "Monitor",
	Suggest:         "Suggest",
	ActWithApproval: "ActWithApproval",
	ActAndReport:    "ActAndReport",
	Autonomous:      "Autonomous",
}

// String renders the level's human-readable name, or a numeric fallback
// for out-of-range values.
func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("Level(%d)", int(l))
}

// Valid reports whether l falls within [LevelMin, LevelMax].
func (l Level) Valid() bool {
	return l >= LevelMin && l <= LevelMax
}

// Clamp restricts l to [LevelMin, LevelMax].
func Clamp(l Level) Level {
	if l < LevelMin {
		return LevelMin
	}
	if l > LevelMax {
		return LevelMax
	}
	return l
}
