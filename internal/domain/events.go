package domain

import "encoding/json"

// Client → server realtime events.
const (
	EventJoin    = "join"
	EventLeave   = "leave"
	EventMessage = "message"
)

// Server → client realtime events. EventMessage is shared by both directions.
const (
	EventConnected = "connected"
	EventSystem    = "system"
)

// Envelope frames every realtime event on the socket.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// OutEnvelope is the server-side counterpart of Envelope with typed data.
type OutEnvelope struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

type RoomPayload struct {
	Room string `json:"room"`
}

type SendPayload struct {
	Room   string `json:"room"`
	Sender string `json:"sender"`
	Text   string `json:"text"`
}

type ConnectedPayload struct {
	OK bool `json:"ok"`
}

type SystemPayload struct {
	Text string `json:"text"`
}

// ChatPayload is what every room member receives for a sent message.
type ChatPayload struct {
	Room   string `json:"room"`
	Sender string `json:"sender"`
	Text   string `json:"text"`
	TS     string `json:"ts"`
}

// NewChatPayload builds the broadcast form of a stored message.
func NewChatPayload(m *Message) ChatPayload {
	return ChatPayload{Room: m.Room, Sender: m.Sender, Text: m.Text, TS: FormatTS(m.CreatedAt)}
}

func Connected() OutEnvelope {
	return OutEnvelope{Event: EventConnected, Data: ConnectedPayload{OK: true}}
}

func System(text string) OutEnvelope {
	return OutEnvelope{Event: EventSystem, Data: SystemPayload{Text: text}}
}

func Chat(p ChatPayload) OutEnvelope {
	return OutEnvelope{Event: EventMessage, Data: p}
}
