package team

import "strings"

// Position is the tagged position type of a membership.
type Position uint8

const (
	PositionUnknown Position = iota
	PositionAgent
	PositionTeamLead
	PositionSupervisor
	PositionManager
)

var positionCodes = map[Position]string{
	PositionUnknown:    "UNKNOWN",
	PositionAgent:      "AGENT",
	PositionTeamLead:   "TEAM_LEAD",
	PositionSupervisor: "SUPERVISOR",
	PositionManager:    "MANAGER",
}

func (p Position) String() string {
	if code, ok := positionCodes[p]; ok {
		return code
	}
	return positionCodes[PositionUnknown]
}

func ParsePosition(code string) Position {
	code = strings.ToUpper(strings.TrimSpace(code))
	for p, c := range positionCodes {
		if c == code {
			return p
		}
	}
	return PositionUnknown
}

// Capability is a bit set of what a position allows.
type Capability uint8

const (
	CapSupervise Capability = 1 << iota
	CapViewUnit
	CapAssign
)

var capabilities = map[Position]Capability{
	PositionAgent:      0,
	PositionTeamLead:   CapSupervise,
	PositionSupervisor: CapSupervise | CapAssign,
	PositionManager:    CapSupervise | CapViewUnit | CapAssign,
}

// Can reports whether position p grants every bit of c.
func Can(p Position, c Capability) bool {
	return capabilities[p]&c == c && c != 0
}
