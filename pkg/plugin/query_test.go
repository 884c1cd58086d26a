// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cassium Contributors

package plugin_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garcia/cassium/pkg/plugin"
)

func TestBuildQuery_Message(t *testing.T) {
	q, ok := plugin.BuildQuery(plugin.Event{
		Kind:    plugin.KindMessage,
		Source:  "alice!alice@example.org",
		Channel: "#test",
		Text:    "`join  #foo",
	}, []string{"#test"})
	require.True(t, ok)

	assert.Equal(t, "alice", q.Nick)
	assert.Equal(t, "alice@example.org", q.Host)
	assert.Equal(t, "alice!alice@example.org", q.User)
	assert.Equal(t, "`join  #foo", q.Message)
	assert.Equal(t, []string{"`join", "", "#foo"}, q.Words, "empty tokens are preserved")
	assert.Equal(t, "#test", q.DefaultTarget())
	assert.False(t, q.Private())
}

func TestBuildQuery_RejectsNonUserSource(t *testing.T) {
	tests := []struct {
		name   string
		source string
	}{
		{"server name", "irc.example.org"},
		{"services", "NickServ"},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, ok := plugin.BuildQuery(plugin.Event{
				Kind:   plugin.KindMessage,
				Source: tt.source,
				Text:   "hello",
			}, nil)
			assert.False(t, ok)
			assert.Nil(t, q)
		})
	}
}

func TestBuildQuery_ConnectedNeedsNoActor(t *testing.T) {
	q, ok := plugin.BuildQuery(plugin.Event{Kind: plugin.KindConnected, Source: "irc.example.org"}, nil)
	require.True(t, ok)
	assert.Equal(t, plugin.KindConnected, q.Kind)
	assert.Empty(t, q.Nick)
	assert.Empty(t, q.DefaultTarget())
}

func TestBuildQuery_PrivateMessageTargetsActor(t *testing.T) {
	q, ok := plugin.BuildQuery(plugin.Event{
		Kind:   plugin.KindMessage,
		Source: "bob!b@host",
		Text:   "hi",
	}, nil)
	require.True(t, ok)
	assert.True(t, q.Private())
	assert.Equal(t, "bob", q.DefaultTarget())
}

func TestBuildQuery_KindFields(t *testing.T) {
	tests := []struct {
		name  string
		event plugin.Event
		check func(t *testing.T, q *plugin.Query)
	}{
		{
			name: "kick",
			event: plugin.Event{
				Kind: plugin.KindKick, Source: "op!o@h", Channel: "#c", Text: "bye", Target: "troll",
			},
			check: func(t *testing.T, q *plugin.Query) {
				assert.Equal(t, "op", q.Kicker)
				assert.Equal(t, "troll", q.Kickee)
				assert.Equal(t, "bye", q.Message)
			},
		},
		{
			name:  "nick",
			event: plugin.Event{Kind: plugin.KindNick, Source: "old!o@h", Target: "new"},
			check: func(t *testing.T, q *plugin.Query) {
				assert.Equal(t, "old", q.OldName)
				assert.Equal(t, "new", q.NewName)
			},
		},
		{
			name:  "topic",
			event: plugin.Event{Kind: plugin.KindTopic, Source: "a!b@c", Channel: "#c", Text: "welcome"},
			check: func(t *testing.T, q *plugin.Query) {
				assert.Equal(t, "welcome", q.Topic)
			},
		},
		{
			name:  "quit",
			event: plugin.Event{Kind: plugin.KindQuit, Source: "a!b@c", Text: "Ping timeout"},
			check: func(t *testing.T, q *plugin.Query) {
				assert.Equal(t, "Ping timeout", q.Message)
				assert.Empty(t, q.Channel)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, ok := plugin.BuildQuery(tt.event, nil)
			require.True(t, ok)
			tt.check(t, q)
		})
	}
}

func TestBuildQuery_ChannelsAreSnapshot(t *testing.T) {
	joined := []string{"#a", "#b"}
	q, ok := plugin.BuildQuery(plugin.Event{Kind: plugin.KindJoin, Source: "x!y@z", Channel: "#a"}, joined)
	require.True(t, ok)

	joined[0] = "#changed"
	assert.Equal(t, []string{"#a", "#b"}, q.Channels)
}
