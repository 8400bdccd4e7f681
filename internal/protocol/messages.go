package protocol

import "encoding/json"

// SAVE_LEVEL (client -> server). World is a world container document in any
// supported layer shape.
type SaveLevelMsg struct {
	Type            string          `json:"type"`
	ProtocolVersion string          `json:"protocol_version"`
	ReqID           string          `json:"req_id,omitempty"`
	World           json.RawMessage `json:"world"`
}

// SAVED (server -> client)
type SavedMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id,omitempty"`
	Name            string `json:"name"`
	Digest          string `json:"digest"`
	Layers          int    `json:"layers"`
	Revision        int    `json:"archived_revision,omitempty"`
}

// LOAD_LEVEL (client -> server)
type LoadLevelMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id,omitempty"`
	Name            string `json:"name"`
}

// LEVEL (server -> client)
type LevelMsg struct {
	Type            string          `json:"type"`
	ProtocolVersion string          `json:"protocol_version"`
	ReqID           string          `json:"req_id,omitempty"`
	Digest          string          `json:"digest"`
	World           json.RawMessage `json:"world"`
}

// LIST_LEVELS (client -> server)
type ListLevelsMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id,omitempty"`
	Limit           int    `json:"limit,omitempty"`
}

type LevelSummary struct {
	Name      string `json:"name"`
	Digest    string `json:"digest"`
	WorldSize int    `json:"world_size,omitempty"`
	Layers    int    `json:"layers"`
	SavedAt   string `json:"saved_at,omitempty"`
}

// LEVELS (server -> client)
type LevelsMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	ReqID           string         `json:"req_id,omitempty"`
	Levels          []LevelSummary `json:"levels"`
}

// ERROR (server -> client)
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id,omitempty"`
	Code            string `json:"code"`
	Message         string `json:"message"`
}

func NewError(reqID, code, message string) ErrorMsg {
	return ErrorMsg{
		Type:            TypeError,
		ProtocolVersion: Version,
		ReqID:           reqID,
		Code:            code,
		Message:         message,
	}
}
