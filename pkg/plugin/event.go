// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cassium Contributors

// Package plugin defines the API that bot plugins are written against.
package plugin

// Kind identifies the signal an inbound event carries.
type Kind string

// Signal kinds delivered to plugins. The string value doubles as the handler
// name a Lua unit defines to receive the signal.
const (
	KindConnected Kind = "connected"
	KindSelfJoin  Kind = "self_join"
	KindSelfLeave Kind = "self_leave"
	KindSelfKick  Kind = "self_kick"
	KindSelfNick  Kind = "self_nick"
	KindMessage   Kind = "message"
	KindJoin      Kind = "join"
	KindLeave     Kind = "leave"
	KindQuit      Kind = "quit"
	KindKick      Kind = "kick"
	KindAction    Kind = "action"
	KindTopic     Kind = "topic"
	KindNick      Kind = "nick"
)

// Kinds lists every signal kind in a stable order.
var Kinds = []Kind{
	KindConnected,
	KindSelfJoin,
	KindSelfLeave,
	KindSelfKick,
	KindSelfNick,
	KindMessage,
	KindJoin,
	KindLeave,
	KindQuit,
	KindKick,
	KindAction,
	KindTopic,
	KindNick,
}

// Valid reports whether k is one of the known signal kinds.
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// HasActor reports whether events of this kind originate from a user and
// therefore carry a nick!host source.
func (k Kind) HasActor() bool {
	return k != KindConnected
}

// Event is a raw inbound protocol event as delivered by the transport.
//
// Field use per kind:
//   - Text: message/action body, part/quit/kick reason, new topic
//   - Target: the kicked nick for kicks, the new nick for renames
type Event struct {
	Kind    Kind
	Source  string // nick!user@host for user-originated traffic
	Channel string // empty for private messages and channel-less events
	Text    string
	Target  string
}
