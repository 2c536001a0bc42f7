// Package names constructs, parses, and displays the fully qualified
// dotted-bracket names used throughout the query surface to address a
// dimension/hierarchy/level, a measure, a cut, or a level property:
//
//	[Dimension].[Hierarchy].[Level]
//	Dimension.Hierarchy.Level
//	Dimension.Level   (shorthand: hierarchy name == dimension name)
//
// Parsing is intentionally permissive: it does not validate bracket
// balance or escaping, it only looks at whether the string opens with
// '[' to decide which splitter to use.
package names

import (
	"fmt"
	"strings"

	"github.com/tesseract-olap/tesseract/internal/util"
)

// LevelName addresses a single level within a hierarchy within a
// dimension. It is the basis every other qualified name builds on.
type LevelName struct {
	Dimension string
	Hierarchy string
	Level     string
}

// NewLevelName builds a LevelName from its three parts.
func NewLevelName(dimension, hierarchy, level string) LevelName {
	return LevelName{Dimension: dimension, Hierarchy: hierarchy, Level: level}
}

// LevelNameFromParts builds a LevelName from either a 3-part
// [dimension, hierarchy, level] slice or a 2-part [dimension, level]
// shorthand, in which case hierarchy defaults to the dimension name.
func LevelNameFromParts(parts []string) (LevelName, error) {
	switch len(parts) {
	case 3:
		return LevelName{Dimension: parts[0], Hierarchy: parts[1], Level: parts[2]}, nil
	case 2:
		return LevelName{Dimension: parts[0], Hierarchy: parts[0], Level: parts[1]}, nil
	default:
		return LevelName{}, util.NewInputError(
			fmt.Sprintf("name %q does not follow the dimension.hierarchy.level naming convention", strings.Join(parts, ".")), nil)
	}
}

func (l LevelName) String() string {
	return fmt.Sprintf("[%s].[%s].[%s]", l.Dimension, l.Hierarchy, l.Level)
}

// ParseLevelName parses either bracketed ([Dim].[Hier].[Lvl]) or bare
// (Dim.Hier.Lvl, Dim.Lvl) syntax.
func ParseLevelName(s string) (LevelName, error) {
	return LevelNameFromParts(splitQualifiedName(s))
}

// splitQualifiedName splits a name on the bracket boundary "].[" when the
// string opens with '[', otherwise splits on '.'.
func splitQualifiedName(s string) []string {
	if strings.HasPrefix(s, "[") {
		trimmed := strings.Trim(s, "[]")
		return strings.Split(trimmed, "].[")
	}
	return strings.Split(s, ".")
}

// Drilldown names a level to group results by. Structurally identical to
// LevelName but kept distinct so the compiler can't confuse roles.
type Drilldown struct {
	LevelName
}

func NewDrilldown(dimension, hierarchy, level string) Drilldown {
	return Drilldown{LevelName: NewLevelName(dimension, hierarchy, level)}
}

func DrilldownFromParts(parts []string) (Drilldown, error) {
	ln, err := LevelNameFromParts(parts)
	if err != nil {
		return Drilldown{}, err
	}
	return Drilldown{LevelName: ln}, nil
}

func (d Drilldown) String() string { return d.LevelName.String() }

func ParseDrilldown(s string) (Drilldown, error) {
	ln, err := ParseLevelName(s)
	if err != nil {
		return Drilldown{}, err
	}
	return Drilldown{LevelName: ln}, nil
}

// Measure names a fact-table aggregation, unqualified by dimension.
type Measure struct {
	Name string
}

func NewMeasure(name string) Measure { return Measure{Name: name} }

func (m Measure) String() string { return m.Name }

// ParseMeasure strips every leading and trailing [ or ] character.
func ParseMeasure(s string) Measure {
	return Measure{Name: strings.Trim(s, "[]")}
}

// Mask controls whether a Cut's members are included or excluded from
// the result.
type Mask int

const (
	MaskInclude Mask = iota
	MaskExclude
)

func (m Mask) String() string {
	if m == MaskExclude {
		return "~"
	}
	return ""
}

// Cut restricts a level to a set of member keys, optionally negated
// (Exclude) and optionally requesting substring matching against member
// labels rather than exact key membership (ForMatch, the leading '*'
// sigil).
type Cut struct {
	LevelName LevelName
	Members   []string
	Mask      Mask
	ForMatch  bool
}

func NewCut(level LevelName, members []string, mask Mask, forMatch bool) Cut {
	return Cut{LevelName: level, Members: members, Mask: mask, ForMatch: forMatch}
}

// CutFromParts builds a Cut from a level-name part slice and a member
// list; the caller is responsible for having already split off the mask
// and match sigils (see ParseCut/ParseCutSigils).
func CutFromParts(levelParts []string, members []string, mask Mask, forMatch bool) (Cut, error) {
	if len(members) == 0 {
		return Cut{}, util.NewInputError("cut has no members", nil)
	}
	ln, err := LevelNameFromParts(levelParts)
	if err != nil {
		return Cut{}, err
	}
	return Cut{LevelName: ln, Members: members, Mask: mask, ForMatch: forMatch}, nil
}

// ParseCutSigils strips a leading '~' (exclude) and/or '*' (match) sigil
// from a raw cut string and reports the mask/forMatch it found along with
// the remaining string.
func ParseCutSigils(s string) (mask Mask, forMatch bool, rest string) {
	if strings.HasPrefix(s, "~") {
		mask = MaskExclude
		s = s[1:]
	}
	if strings.HasPrefix(s, "*") {
		forMatch = true
		s = s[1:]
	}
	return mask, forMatch, s
}

func (c Cut) String() string {
	var b strings.Builder
	b.WriteString(c.Mask.String())
	if len(c.Members) == 1 {
		fmt.Fprintf(&b, "%s.&[%s]", c.LevelName, c.Members[0])
		return b.String()
	}
	b.WriteString("{")
	for i, m := range c.Members {
		if i > 0 {
			b.WriteString(",")
		}
		fmt.Fprintf(&b, "%s.&[%s]", c.LevelName, m)
	}
	b.WriteString("}")
	return b.String()
}

// ParseCut parses a cut string of the form
// [~][*][Dim].[Hier].[Lvl].&[m1,m2,...] or the bare-name equivalent
// Dim.Lvl.m1,m2. A leading '&' on the member list or on any individual
// member is stripped.
func ParseCut(s string) (Cut, error) {
	mask, forMatch, s := ParseCutSigils(s)
	s = strings.Replace(s, "].&[", "].[", 1)

	parts := splitQualifiedName(s)
	if len(parts) < 2 {
		return Cut{}, util.NewInputError(fmt.Sprintf("cut %q does not follow the dimension.level.members naming convention", s), nil)
	}

	memberField := parts[len(parts)-1]
	memberField = strings.TrimPrefix(memberField, "&")
	memberField = strings.TrimPrefix(memberField, "[")

	rawMembers := strings.Split(memberField, ",")
	members := make([]string, len(rawMembers))
	for i, m := range rawMembers {
		members[i] = strings.TrimPrefix(m, "&")
	}

	return CutFromParts(parts[:len(parts)-1], members, mask, forMatch)
}

// Property names a non-aggregated attribute of a level's members, such
// as a localized label or a centroid coordinate.
type Property struct {
	LevelName LevelName
	Property  string
}

func NewProperty(dimension, hierarchy, level, property string) Property {
	return Property{LevelName: NewLevelName(dimension, hierarchy, level), Property: property}
}

func PropertyFromParts(parts []string) (Property, error) {
	if len(parts) < 2 {
		return Property{}, util.NewInputError(fmt.Sprintf("property %q does not follow the dimension.level.property naming convention", strings.Join(parts, ".")), nil)
	}
	ln, err := LevelNameFromParts(parts[:len(parts)-1])
	if err != nil {
		return Property{}, err
	}
	return Property{LevelName: ln, Property: parts[len(parts)-1]}, nil
}

func (p Property) String() string {
	return fmt.Sprintf("%s.[%s]", p.LevelName, p.Property)
}

func ParseProperty(s string) (Property, error) {
	return PropertyFromParts(splitQualifiedName(s))
}

// DrillLevel returns the Drilldown addressing the same level this
// Property is defined on, used when a caller wants to both drill down on
// and fetch a property of the same level.
func (p Property) DrillLevel() Drilldown {
	return Drilldown{LevelName: p.LevelName}
}
