// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cassium Contributors

package plugin

import "strings"

// Query is the read-only context a plugin handler receives for one event.
type Query struct {
	Kind Kind

	// User is the raw actor string, split into Nick and Host on the first '!'.
	User string
	Nick string
	Host string
	// Admin is set by the bot when Nick is on the admin allow-list.
	Admin bool

	Channel string
	Message string
	// Words is Message split on single spaces; empty tokens are kept so that
	// positional command arguments line up with the raw text.
	Words []string

	Kicker  string
	Kickee  string
	OldName string
	NewName string
	Topic   string

	// Channels is a copy of the channels the bot had joined when the query
	// was built.
	Channels []string
}

// BuildQuery converts a raw event into a Query. It reports false when the
// event should carry a user actor but its source is not of the form
// nick!host, which is how server and services traffic presents itself.
func BuildQuery(ev Event, joined []string) (*Query, bool) {
	q := &Query{
		Kind:     ev.Kind,
		User:     ev.Source,
		Channel:  ev.Channel,
		Channels: append([]string(nil), joined...),
	}

	if ev.Kind.HasActor() {
		nick, host, ok := strings.Cut(ev.Source, "!")
		if !ok {
			return nil, false
		}
		q.Nick = nick
		q.Host = host
	}

	switch ev.Kind {
	case KindMessage, KindAction, KindLeave, KindQuit, KindSelfLeave:
		q.Message = ev.Text
		q.Words = strings.Split(ev.Text, " ")
	case KindKick, KindSelfKick:
		q.Message = ev.Text
		q.Kicker = q.Nick
		q.Kickee = ev.Target
	case KindTopic:
		q.Topic = ev.Text
	case KindNick, KindSelfNick:
		q.OldName = q.Nick
		q.NewName = ev.Target
	}

	return q, true
}

// DefaultTarget is where an unaddressed reply goes: the channel for
// channel-scoped events, otherwise the acting user.
func (q *Query) DefaultTarget() string {
	if q.Channel != "" {
		return q.Channel
	}
	return q.Nick
}

// Private reports whether the event was addressed to the bot directly.
func (q *Query) Private() bool {
	return q.Channel == "" && q.Kind == KindMessage
}
