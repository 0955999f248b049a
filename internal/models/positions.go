package models

// Position category groups. A trade may only swap roster slots belonging to
// the same group.
const (
	GroupGoalkeeper = "gk"
	GroupDefender   = "def"
	GroupMidfielder = "mid"
	GroupAttacker   = "att"
	GroupOther      = "other"
)

var positionGroups = map[string]string{
	"Portero":               GroupGoalkeeper,
	"Lateral Izquierdo":     GroupDefender,
	"Central Izquierdo":     GroupDefender,
	"Central Derecho":       GroupDefender,
	"Lateral Derecho":       GroupDefender,
	"Mediocentro Defensivo": GroupMidfielder,
	"Mediocentro":           GroupMidfielder,
	"Mediocentro Ofensivo":  GroupMidfielder,
	"Extremo Izquierdo":     GroupAttacker,
	"Delantero Centro":      GroupAttacker,
	"Extremo Derecho":       GroupAttacker,
}

// GroupForPosition maps a roster slot name to its category group. Unknown
// slots fall into the "other" group.
func GroupForPosition(pos string) string {
	if g, ok := positionGroups[pos]; ok {
		return g
	}
	return GroupOther
}
