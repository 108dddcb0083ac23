// Package agents implements the conversational layer: intent recognition,
// the agent role catalog with system prompts, role-bound conversational
// agents, and the communication manager that routes user messages.
package agents

// Role identifies a specialized agent role. The set is closed.
type Role string

const (
	RoleMarket    Role = "market"
	RoleContent   Role = "content"
	RoleLogistics Role = "logistics"
	RoleExecutive Role = "executive"
	RoleLiaison   Role = "liaison"

	// RoleError is not a real agent; it marks the routing fallback response
	RoleError Role = "error"
)

// Roles lists the conversational roles in declared order
var Roles = []Role{RoleMarket, RoleContent, RoleLogistics, RoleExecutive, RoleLiaison}

// Valid reports whether r names a real conversational role
func (r Role) Valid() bool {
	switch r {
	case RoleMarket, RoleContent, RoleLogistics, RoleExecutive, RoleLiaison:
		return true
	}
	return false
}
