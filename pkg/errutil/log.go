// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cassium Contributors

// Package errutil holds helpers for reporting oops errors.
package errutil

import (
	"context"
	"log/slog"
	"strings"

	"github.com/samber/oops"
)

// LogError logs err at error level with everything an oops error carries:
// code, hint, context attributes and the stack trace.
func LogError(ctx context.Context, logger *slog.Logger, msg string, err error) {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		logger.ErrorContext(ctx, msg, "error", err)
		return
	}

	attrs := []any{"error", oopsErr.Error()}
	if code := oopsErr.Code(); code != nil {
		attrs = append(attrs, "code", code)
	}
	if hint := oopsErr.Hint(); hint != "" {
		attrs = append(attrs, "hint", hint)
	}
	if errCtx := oopsErr.Context(); len(errCtx) > 0 {
		attrs = append(attrs, "context", errCtx)
	}
	if stack := oopsErr.Stacktrace(); stack != "" {
		attrs = append(attrs, "stacktrace", stack)
	}
	logger.ErrorContext(ctx, msg, attrs...)
}

// Summary returns a single line describing err, suitable for sending over a
// line-based chat protocol. A public message set with oops.Public is preferred;
// otherwise the last non-empty line of the error text is used.
func Summary(err error) string {
	if err == nil {
		return ""
	}
	text := err.Error()
	if oopsErr, ok := oops.AsOops(err); ok && oopsErr.Public() != "" {
		text = oopsErr.Public()
	}
	return lastLine(text)
}

func lastLine(text string) string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}
