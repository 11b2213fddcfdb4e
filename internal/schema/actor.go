package schema

import "fmt"

// ActorID is the stable string "<kind>.<index>" identifying an actor
// uniquely across the process lifetime of one configuration epoch
//. The always-on system actor uses the bare id "system".
type ActorID string

// NewActorID formats the "<kind>.<index>" identifier.
func NewActorID(kind, index string) ActorID {
	return ActorID(fmt.Sprintf("%s.%s", kind, index))
}

// SystemActorID is the always-on, non-config-driven system actor's id.
const SystemActorID ActorID = "system"

// Kind extracts the actor kind prefix ("device", "sim", "web", "mock_device",
// "mock_simulator") from an id, or "" for the bare "system" id.
func (id ActorID) Kind() string {
	s := string(id)
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '.' {
			return s[:i]
		}
	}
	return ""
}

// ActorStatusKind enumerates the lifecycle phases reported in ActorStatus.
type ActorStatusKind string

const (
	StatusStarting     ActorStatusKind = "starting"
	StatusConnected    ActorStatusKind = "connected"
	StatusReconnecting ActorStatusKind = "reconnecting"
	StatusDisconnected ActorStatusKind = "disconnected"
)
