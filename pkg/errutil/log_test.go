// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cassium Contributors

package errutil_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garcia/cassium/pkg/errutil"
)

func TestLogError_WithOopsError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	err := oops.Code("HANDLER_FAILED").
		With("plugin", "hello.HelloWorld").
		Hint("check the plugin source").
		Errorf("something failed")

	errutil.LogError(context.Background(), logger, "dispatch failed", err)

	var logEntry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logEntry))
	assert.Equal(t, "ERROR", logEntry["level"])
	assert.Equal(t, "dispatch failed", logEntry["msg"])
	assert.Equal(t, "HANDLER_FAILED", logEntry["code"])
	assert.Equal(t, "check the plugin source", logEntry["hint"])
	assert.Contains(t, logEntry, "context")
}

func TestLogError_WithStandardError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	errutil.LogError(context.Background(), logger, "dispatch failed", errors.New("standard error"))

	var logEntry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logEntry))
	assert.Equal(t, "ERROR", logEntry["level"])
	assert.Contains(t, logEntry["error"], "standard error")
}

func TestSummary(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"single line", errors.New("boom"), "boom"},
		{"multi line", errors.New("traceback:\n  at foo\nValueError: bad input\n"), "ValueError: bad input"},
		{"crlf", errors.New("first\r\nsecond"), "second"},
		{"public message", oops.Public("could not reach the dice service").Errorf("dial tcp: refused\nmore"), "could not reach the dice service"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errutil.Summary(tt.err))
		})
	}
}
