package edt

import "fmt"

// Group names a cohort whose timetable can be requested.
type Group string

// Known groups. The upstream federation accepts any label, but only these
// are wired to real timetables.
const (
	GroupS6Info       Group = "S6 INFO"
	GroupS6InfoTD01   Group = "S6 INFO TD01"
	GroupS6InfoTD02   Group = "S6 INFO TD02"
	GroupS6InfoTD03   Group = "S6 INFO TD03"
	GroupS6InfoTD04   Group = "S6 INFO TD04"
	GroupM1Secrets    Group = "M1 SECRETS"
	GroupM1SecretsGr1 Group = "M1 SECRETS gr 1"
	GroupM1SecretsGr2 Group = "M1 SECRETS gr 2"
	GroupM1SecretsGr3 Group = "M1 SECRETS gr 3"
	GroupM1SecretsGr4 Group = "M1 SECRETS gr 4"

	DefaultGroup = GroupS6InfoTD01
)

var knownGroups = []Group{
	GroupS6Info,
	GroupS6InfoTD01,
	GroupS6InfoTD02,
	GroupS6InfoTD03,
	GroupS6InfoTD04,
	GroupM1Secrets,
	GroupM1SecretsGr1,
	GroupM1SecretsGr2,
	GroupM1SecretsGr3,
	GroupM1SecretsGr4,
}

// Groups returns every known group in declaration order.
func Groups() []Group {
	out := make([]Group, len(knownGroups))
	copy(out, knownGroups)
	return out
}

// Valid reports whether g is one of the known groups.
func (g Group) Valid() bool {
	for _, k := range knownGroups {
		if g == k {
			return true
		}
	}
	return false
}

func (g Group) String() string { return string(g) }

// ParseGroup converts s into a known Group.
func ParseGroup(s string) (Group, error) {
	g := Group(s)
	if !g.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownGroup, s)
	}
	return g, nil
}
