package schema

import "encoding/json"

// EventKind discriminates the Event tagged union.
type EventKind string

const (
	KindShotResult    EventKind = "shot_result"
	KindReadyState    EventKind = "ready_state"
	KindSetPlayerInfo EventKind = "set_player_info"
	KindSetClubInfo   EventKind = "set_club_info"
	KindSetMode       EventKind = "set_mode"
	KindGameSnapshot  EventKind = "game_snapshot"
	KindActorStatus   EventKind = "actor_status"
	KindConfigChanged EventKind = "config_changed"
	KindConfigCommand EventKind = "config_command"
	KindConfigOutcome EventKind = "config_outcome"
	KindAlert         EventKind = "alert"
	KindUserData      EventKind = "user_data"
)

// ReadyState reports a device's armed/ball-detected pair.
type ReadyState struct {
	Armed        bool
	BallDetected bool
}

// PlayerInfo describes the player's handedness, used by SetPlayerInfo and
// derived from simulator responses.
type PlayerInfo struct {
	Handed string // "left" or "right"
}

// ClubInfo names the club currently in play.
type ClubInfo struct {
	Club Club
}

// ActorStatusPayload is the status/telemetry pair published by every actor.
type ActorStatusPayload struct {
	Status    ActorStatusKind
	Telemetry map[string]string
}

// ConfigChangedPayload carries the new device-section config a device
// actor should apply in place.
type ConfigChangedPayload struct {
	DeviceIndex string
	Device      DeviceSection
}

// ConfigAction discriminates ConfigCommand.
type ConfigAction string

const (
	ActionReplaceAll ConfigAction = "replace_all"
	ActionUpsert     ConfigAction = "upsert_section"
	ActionRemove     ConfigAction = "remove"
)

// ConfigCommand requests a configuration mutation, optionally awaiting a
// matching ConfigOutcome via RequestID.
type ConfigCommand struct {
	RequestID string
	Action    ConfigAction

	// ReplaceAll
	Replacement *Config

	// UpsertSection
	SectionKind  string // "webserver" | "device" | "mock_device" | "simulator" | "mock_simulator"
	SectionIndex string
	Section      any

	// Remove
	RemoveID ActorID
}

// ConfigOutcome reports the result of a reconciliation triggered by a
// ConfigCommand.
type ConfigOutcome struct {
	RequestID string
	Restarted []ActorID
	Stopped   []ActorID
	Started   []ActorID
}

// AlertLevel discriminates Alert severity.
type AlertLevel string

const (
	AlertWarn  AlertLevel = "warn"
	AlertError AlertLevel = "error"
)

// Alert is a user-visible notification.
type Alert struct {
	Level   AlertLevel
	Message string
}

// Event is the tagged union carried by every BusMessage. Exactly one of
// the payload fields is populated, selected by Kind.
type Event struct {
	Kind EventKind

	ShotResult    *Shot
	ReadyState    *ReadyState
	SetPlayerInfo *PlayerInfo
	SetClubInfo   *ClubInfo
	SetMode       *Mode
	GameSnapshot  *GameSnapshot
	ActorStatus   *ActorStatusPayload
	ConfigChanged *ConfigChangedPayload
	ConfigCommand *ConfigCommand
	ConfigOutcome *ConfigOutcome
	Alert         *Alert
	UserData      json.RawMessage
}

// GameSnapshot is a read-only copy of the single-writer game state.
type GameSnapshot struct {
	Player PlayerInfo
	Club   Club
	Mode   Mode
}
