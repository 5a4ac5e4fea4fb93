package pubsub

import (
	"fmt"
	"strings"
)

// Channel naming for market room events. Room names are opaque and may contain ':'.
const (
	ChannelRoomEvents = "market:room:%s:events"
	PatternRoomEvents = "market:room:*:events"
)

// Event types carried on room channels.
const (
	EventChatMessage = "chat_message"
)

// RoomEventsChannel returns the channel a room's events are published on.
func RoomEventsChannel(room string) string {
	return fmt.Sprintf(ChannelRoomEvents, room)
}

// RoomFromChannel extracts the room name from a room events channel.
func RoomFromChannel(channel string) (string, bool) {
	const prefix, suffix = "market:room:", ":events"
	if len(channel) <= len(prefix)+len(suffix) ||
		!strings.HasPrefix(channel, prefix) || !strings.HasSuffix(channel, suffix) {
		return "", false
	}
	return channel[len(prefix) : len(channel)-len(suffix)], true
}
