package orgunit

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound indicates the unit id does not resolve.
var ErrNotFound = errors.New("orgunit: not found")

// Level is the organizational tier of a unit. Smaller values are broader.
type Level int

const (
	LevelNational Level = iota
	LevelRegional
	LevelProvincial
	LevelMunicipal
)

var levelNames = [...]string{
	LevelNational:   "NATIONAL",
	LevelRegional:   "REGIONAL",
	LevelProvincial: "PROVINCIAL",
	LevelMunicipal:  "MUNICIPAL",
}

// String renders the level as stored in the database.
func (l Level) String() string {
	if !l.Valid() {
		return fmt.Sprintf("Level(%d)", int(l))
	}
	return levelNames[l]
}

// Valid reports whether l is one of the four known tiers.
func (l Level) Valid() bool {
	return l >= LevelNational && l <= LevelMunicipal
}

// BroaderThan reports whether l sits strictly above other in the hierarchy.
func (l Level) BroaderThan(other Level) bool {
	return l.Valid() && other.Valid() && l < other
}

// ParseLevel converts a stored level name into a Level.
func ParseLevel(raw string) (Level, error) {
	normalized := strings.ToUpper(strings.TrimSpace(raw))
	for i, name := range levelNames {
		if name == normalized {
			return Level(i), nil
		}
	}
	return 0, fmt.Errorf("orgunit: unknown level %q", raw)
}

// Levels returns every level from broadest to narrowest.
func Levels() []Level {
	return []Level{LevelNational, LevelRegional, LevelProvincial, LevelMunicipal}
}

// Unit is a node of the National > Regional > Provincial > Municipal tree.
type Unit struct {
	ID       int64
	Name     string
	Level    Level
	ParentID *int64
}

// IsRoot reports whether the unit has no parent.
func (u Unit) IsRoot() bool {
	return u.ParentID == nil
}
