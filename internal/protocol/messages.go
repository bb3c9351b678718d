package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string            `json:"type"`
	ProtocolVersion string            `json:"protocol_version"`
	ClientName      string            `json:"client_name"`
	Capabilities    HelloCapabilities `json:"capabilities"`
}

type HelloCapabilities struct {
	// Marks asks for the flag plane alongside the glyphs in every FRAME.
	Marks    bool `json:"marks,omitempty"`
	MaxQueue int  `json:"max_queue,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	SessionID       string         `json:"session_id"`
	WorldID         string         `json:"world_id"`
	Tick            uint64         `json:"tick"`
	WorldParams     WorldParams    `json:"world_params"`
	Operators       []OperatorInfo `json:"operators"`
}

type WorldParams struct {
	TickRateHz      int `json:"tick_rate_hz"`
	Width           int `json:"width"`
	Height          int `json:"height"`
	FrameEveryTicks int `json:"frame_every_ticks"`
}

// OperatorInfo names one operator family and the glyphs bound to it.
type OperatorInfo struct {
	Name   string `json:"name"`
	Glyphs string `json:"glyphs"`
}

// FRAME (server -> client). Glyphs and Marks are row-major RLE payloads.
type FrameMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Tick            uint64 `json:"tick"`
	Width           int    `json:"width"`
	Height          int    `json:"height"`
	Encoding        string `json:"encoding"`
	Glyphs          string `json:"glyphs"`
	Marks           string `json:"marks,omitempty"`
	Digest          string `json:"digest"`
}

// EDIT (client -> server). Glyph is a single character.
type EditMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Y               int    `json:"y"`
	X               int    `json:"x"`
	Glyph           string `json:"glyph"`
}

// ERROR (server -> client)
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Message         string `json:"message"`
}
