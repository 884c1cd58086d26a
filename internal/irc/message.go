// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cassium Contributors

package irc

import (
	"strings"

	"github.com/samber/oops"
)

// CodeMalformedLine is returned for lines that are not IRC messages.
const CodeMalformedLine = "MALFORMED_LINE"

// Message is one protocol line: an optional prefix, a command and its
// parameters. The trailing parameter is stored like any other.
type Message struct {
	Prefix  string
	Command string
	Params  []string
}

// ParseMessage parses a single line. Message tags are accepted and ignored.
func ParseMessage(line string) (Message, error) {
	line = strings.TrimRight(line, "\r\n")
	if strings.HasPrefix(line, "@") {
		_, line, _ = strings.Cut(line, " ")
	}

	var m Message
	if strings.HasPrefix(line, ":") {
		prefix, rest, ok := strings.Cut(line[1:], " ")
		if !ok {
			return Message{}, oops.In("irc").Code(CodeMalformedLine).With("line", line).
				Errorf("line has a prefix but no command")
		}
		m.Prefix = prefix
		line = rest
	}

	line = strings.TrimLeft(line, " ")
	var trailing string
	hasTrailing := false
	if i := strings.Index(line, " :"); i >= 0 {
		trailing = line[i+2:]
		line = line[:i]
		hasTrailing = true
	}

	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Message{}, oops.In("irc").Code(CodeMalformedLine).With("line", line).
			Errorf("line has no command")
	}
	m.Command = strings.ToUpper(fields[0])
	m.Params = fields[1:]
	if hasTrailing {
		m.Params = append(m.Params, trailing)
	}
	return m, nil
}

// Param returns the i-th parameter, or "" if there is none.
func (m Message) Param(i int) string {
	if i < len(m.Params) {
		return m.Params[i]
	}
	return ""
}

// Nick returns the nick part of the prefix.
func (m Message) Nick() string {
	nick, _, _ := strings.Cut(m.Prefix, "!")
	return nick
}

// String renders the message as a protocol line without the line ending.
// CR, LF and NUL are replaced so a parameter cannot start a new command.
func (m Message) String() string {
	var b strings.Builder
	if m.Prefix != "" {
		b.WriteString(":" + m.Prefix + " ")
	}
	b.WriteString(m.Command)
	for i, p := range m.Params {
		p = sanitize(p)
		b.WriteByte(' ')
		if i == len(m.Params)-1 && (p == "" || strings.Contains(p, " ") || strings.HasPrefix(p, ":")) {
			b.WriteByte(':')
		}
		b.WriteString(p)
	}
	return b.String()
}

var lineBreaks = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ", "\x00", "")

func sanitize(s string) string {
	return lineBreaks.Replace(s)
}

// IsChannel reports whether target names a channel rather than a user.
func IsChannel(target string) bool {
	return target != "" && strings.ContainsRune("#&+!", rune(target[0]))
}

const ctcpDelim = "\x01"

// ctcp splits a CTCP payload into its command and argument.
func ctcp(text string) (command, arg string, ok bool) {
	if len(text) < 2 || !strings.HasPrefix(text, ctcpDelim) {
		return "", "", false
	}
	body := strings.TrimSuffix(text[1:], ctcpDelim)
	command, arg, _ = strings.Cut(body, " ")
	return strings.ToUpper(command), arg, true
}
