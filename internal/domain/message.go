package domain

import "time"

const (
	// HistoryLimit caps how many messages a room's history returns.
	HistoryLimit = 50
	// MaxSenderLength is the longest sender name stored, in characters.
	MaxSenderLength = 120
	// AnonymousSender replaces a missing sender name.
	AnonymousSender = "anonymous"
	// LobbyRoom is the shared room used outside product pages.
	LobbyRoom = "lobby"
)

// Message is a persisted chat line.
type Message struct {
	ID        uint      `json:"id"`
	Room      string    `json:"room"`
	Sender    string    `json:"sender"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// HistoryEntry is the wire form of a message in room history.
type HistoryEntry struct {
	Sender string `json:"sender"`
	Text   string `json:"text"`
	TS     string `json:"ts"`
}

// FormatTS renders timestamps the same way everywhere they go on the wire.
func FormatTS(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// ToHistoryEntry converts a message for the history endpoint.
func (m *Message) ToHistoryEntry() HistoryEntry {
	return HistoryEntry{Sender: m.Sender, Text: m.Text, TS: FormatTS(m.CreatedAt)}
}
