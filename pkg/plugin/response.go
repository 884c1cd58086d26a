// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cassium Contributors

package plugin

// Message is a line of text addressed to a channel or user. It is used for
// messages, notices and /me actions.
type Message struct {
	Target string
	Text   string
}

// JoinRequest asks the bot to join a channel.
type JoinRequest struct {
	Channel string
	Key     string
}

// LeaveRequest asks the bot to part a channel.
type LeaveRequest struct {
	Channel string
	Reason  string
}

// KickRequest asks the bot to remove a user from a channel.
type KickRequest struct {
	Channel string
	User    string
	Reason  string
}

// TopicRequest sets a channel topic.
type TopicRequest struct {
	Channel string
	Topic   string
}

// ModeChange is a single mode command, e.g. ("#chan", "+o", ["nick"]).
type ModeChange struct {
	Channel string
	Mode    string
	Args    []string
}

// LogEntry is a line a plugin wants written to the bot log.
type LogEntry struct {
	Plugin string
	Text   string
}

type kickKey struct {
	channel string
	user    string
}

// Response collects the outbound actions plugins request while one event is
// dispatched. Plugins only add to it; the dispatcher reads it back once all
// handlers have returned.
//
// Messages, notices, actions, logs and modes keep every entry in call order.
// Joins and leaves collapse duplicates while keeping first-seen order. Kicks
// and topics keep the last value written for their key, ordered by first
// write. The nick change keeps the last value.
type Response struct {
	target string
	source string

	logs    []LogEntry
	kicks   map[kickKey]string
	kickIDs []kickKey
	topics  map[string]string
	topicCh []string
	nick    *string
	joins   []JoinRequest
	joinSet map[JoinRequest]struct{}
	leaves  []LeaveRequest
	leaveSt map[LeaveRequest]struct{}
	modes   []ModeChange
	notices []Message
	actions []Message
	msgs    []Message
}

// NewResponse creates an empty response whose unaddressed replies go to target.
func NewResponse(target string) *Response {
	return &Response{
		target:  target,
		kicks:   make(map[kickKey]string),
		topics:  make(map[string]string),
		joinSet: make(map[JoinRequest]struct{}),
		leaveSt: make(map[LeaveRequest]struct{}),
	}
}

// Target returns the default reply target fixed at construction.
func (r *Response) Target() string { return r.target }

// SetSource records which plugin is currently writing, for log attribution.
func (r *Response) SetSource(name string) { r.source = name }

// Msg queues a message to the default target.
func (r *Response) Msg(text string) {
	r.MsgTo(r.target, text)
}

// MsgTo queues a message to an explicit channel or user.
func (r *Response) MsgTo(target, text string) {
	r.msgs = append(r.msgs, Message{Target: target, Text: text})
}

// Notice queues a notice to a user.
func (r *Response) Notice(user, text string) {
	r.notices = append(r.notices, Message{Target: user, Text: text})
}

// Action queues a /me action to the default target.
func (r *Response) Action(text string) {
	r.ActionTo(r.target, text)
}

// ActionTo queues a /me action to an explicit channel.
func (r *Response) ActionTo(channel, text string) {
	r.actions = append(r.actions, Message{Target: channel, Text: text})
}

// Join queues a channel join.
func (r *Response) Join(channel, key string) {
	req := JoinRequest{Channel: channel, Key: key}
	if _, ok := r.joinSet[req]; ok {
		return
	}
	r.joinSet[req] = struct{}{}
	r.joins = append(r.joins, req)
}

// Leave queues a channel part.
func (r *Response) Leave(channel, reason string) {
	req := LeaveRequest{Channel: channel, Reason: reason}
	if _, ok := r.leaveSt[req]; ok {
		return
	}
	r.leaveSt[req] = struct{}{}
	r.leaves = append(r.leaves, req)
}

// Kick queues a kick; a later kick of the same user from the same channel
// replaces the reason.
func (r *Response) Kick(channel, user, reason string) {
	key := kickKey{channel: channel, user: user}
	if _, ok := r.kicks[key]; !ok {
		r.kickIDs = append(r.kickIDs, key)
	}
	r.kicks[key] = reason
}

// Topic queues a topic change; the last topic set for a channel wins.
func (r *Response) Topic(channel, topic string) {
	if _, ok := r.topics[channel]; !ok {
		r.topicCh = append(r.topicCh, channel)
	}
	r.topics[channel] = topic
}

// Mode queues a mode change. Mode changes are never deduplicated.
func (r *Response) Mode(channel, mode string, args ...string) {
	r.modes = append(r.modes, ModeChange{Channel: channel, Mode: mode, Args: append([]string(nil), args...)})
}

// Nick queues a change of the bot's own nickname; the last request wins.
func (r *Response) Nick(nick string) {
	r.nick = &nick
}

// Log queues a line for the bot log, attributed to the writing plugin.
func (r *Response) Log(text string) {
	r.logs = append(r.logs, LogEntry{Plugin: r.source, Text: text})
}

// Logs returns the queued log lines.
func (r *Response) Logs() []LogEntry { return r.logs }

// Kicks returns the queued kicks in first-requested order.
func (r *Response) Kicks() []KickRequest {
	out := make([]KickRequest, 0, len(r.kickIDs))
	for _, key := range r.kickIDs {
		out = append(out, KickRequest{Channel: key.channel, User: key.user, Reason: r.kicks[key]})
	}
	return out
}

// Topics returns the queued topic changes in first-requested order.
func (r *Response) Topics() []TopicRequest {
	out := make([]TopicRequest, 0, len(r.topicCh))
	for _, ch := range r.topicCh {
		out = append(out, TopicRequest{Channel: ch, Topic: r.topics[ch]})
	}
	return out
}

// NickChange returns the requested nickname, if any.
func (r *Response) NickChange() (string, bool) {
	if r.nick == nil {
		return "", false
	}
	return *r.nick, true
}

// Joins returns the queued joins.
func (r *Response) Joins() []JoinRequest { return r.joins }

// Leaves returns the queued parts.
func (r *Response) Leaves() []LeaveRequest { return r.leaves }

// Modes returns the queued mode changes.
func (r *Response) Modes() []ModeChange { return r.modes }

// Notices returns the queued notices.
func (r *Response) Notices() []Message { return r.notices }

// Actions returns the queued /me actions.
func (r *Response) Actions() []Message { return r.actions }

// Messages returns the queued messages.
func (r *Response) Messages() []Message { return r.msgs }

// Empty reports whether nothing has been queued.
func (r *Response) Empty() bool {
	return len(r.logs) == 0 && len(r.kickIDs) == 0 && len(r.topicCh) == 0 &&
		r.nick == nil && len(r.joins) == 0 && len(r.leaves) == 0 &&
		len(r.modes) == 0 && len(r.notices) == 0 && len(r.actions) == 0 &&
		len(r.msgs) == 0
}
