// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cassium Contributors

package bot

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	plugins "github.com/garcia/cassium/internal/plugin"
	"github.com/garcia/cassium/pkg/errutil"
	pluginsdk "github.com/garcia/cassium/pkg/plugin"
)

var tracer = otel.Tracer("cassium/bot")

// Error codes for failures while dispatching an event.
const (
	CodeHandlerFailed = "HANDLER_FAILED"
	CodeHandlerPanic  = "HANDLER_PANIC"
	CodeFlushFailed   = "FLUSH_FAILED"
)

// Dispatch offers one event to every interested plugin and flushes the
// actions they requested. If a handler fails, nothing requested for the
// event is sent; a one-line error notice goes to the event's default target
// instead.
//
// Dispatch returns an error only when the event ended in a restart
// (ErrRestart). Plugin failures are reported and logged, never returned.
func (b *Bot) Dispatch(ctx context.Context, ev pluginsdk.Event) error {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "bot.dispatch",
		trace.WithAttributes(
			attribute.String("event.id", ulid.Make().String()),
			attribute.String("event.kind", string(ev.Kind)),
		),
	)
	defer span.End()

	b.track(ev)

	q, ok := pluginsdk.BuildQuery(ev, b.joined())
	if !ok {
		b.logger.DebugContext(ctx, "dropping event without a user source", "kind", ev.Kind, "source", ev.Source)
		recordDispatch(ev.Kind, StatusDropped, time.Since(start))
		return nil
	}
	if b.admins != nil {
		q.Admin = b.admins.Allowed(q.Nick)
	}
	resp := pluginsdk.NewResponse(q.DefaultTarget())

	err := b.invoke(ctx, q, resp)
	if err == nil {
		err = b.flush(ctx, resp)
	}
	if err == nil {
		err = b.runPending(ctx)
	} else {
		b.pending, b.pendingReason = pendingNone, ""
	}

	switch {
	case err == nil:
		recordDispatch(ev.Kind, StatusOK, time.Since(start))
		return nil
	case errors.Is(err, ErrRestart):
		recordDispatch(ev.Kind, StatusOK, time.Since(start))
		return err
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	recordDispatch(ev.Kind, StatusFailed, time.Since(start))
	b.fail(ctx, q, err)
	return nil
}

// invoke runs the handlers for q's kind: ordinary plugins in registry order,
// then the privileged plugins. The first failure stops the dispatch.
func (b *Bot) invoke(ctx context.Context, q *pluginsdk.Query, resp *pluginsdk.Response) error {
	entries := append(b.source.Registry().All(), b.privileged...)
	for _, entry := range entries {
		fn, ok := entry.Handler(q.Kind)
		if !ok {
			continue
		}
		if q.Kind == pluginsdk.KindMessage && !entry.Matches(q.Message) {
			continue
		}
		if err := b.call(ctx, entry, fn, q, resp); err != nil {
			recordHandlerError(entry.Name())
			return err
		}
	}
	return nil
}

func (b *Bot) call(ctx context.Context, entry *plugins.Entry, fn pluginsdk.HandlerFunc,
	q *pluginsdk.Query, resp *pluginsdk.Response,
) (err error) {
	name := entry.Name()
	defer func() {
		if r := recover(); r != nil {
			err = oops.In("bot").Code(CodeHandlerPanic).
				With("plugin", name).With("kind", string(q.Kind)).
				Errorf("%s crashed handling %s: %v", name, q.Kind, r)
		}
	}()

	resp.SetSource(name)
	if err := fn(ctx, q, resp); err != nil {
		return oops.In("bot").Code(CodeHandlerFailed).
			With("plugin", name).With("kind", string(q.Kind)).Wrap(err)
	}
	return nil
}

// flush sends the aggregated response in a fixed order regardless of the
// order in which plugins populated it. The first transport error aborts the
// remaining sends.
func (b *Bot) flush(ctx context.Context, resp *pluginsdk.Response) error {
	for _, entry := range resp.Logs() {
		b.logger.InfoContext(ctx, entry.Text, "plugin", entry.Plugin)
	}
	recordActions(ActionLog, len(resp.Logs()))

	steps := []struct {
		action string
		count  int
		send   func() error
	}{
		{ActionKick, len(resp.Kicks()), func() error {
			for _, k := range resp.Kicks() {
				if err := b.transport.Kick(ctx, k.Channel, k.User, k.Reason); err != nil {
					return flushError(ActionKick, k.Channel, err)
				}
			}
			return nil
		}},
		{ActionTopic, len(resp.Topics()), func() error {
			for _, t := range resp.Topics() {
				if err := b.transport.SetTopic(ctx, t.Channel, t.Topic); err != nil {
					return flushError(ActionTopic, t.Channel, err)
				}
			}
			return nil
		}},
		{ActionNick, nickCount(resp), func() error {
			if nick, ok := resp.NickChange(); ok {
				if err := b.transport.SetNick(ctx, nick); err != nil {
					return flushError(ActionNick, nick, err)
				}
			}
			return nil
		}},
		{ActionJoin, len(resp.Joins()), func() error {
			for _, j := range resp.Joins() {
				if err := b.transport.Join(ctx, j.Channel, j.Key); err != nil {
					return flushError(ActionJoin, j.Channel, err)
				}
			}
			return nil
		}},
		{ActionLeave, len(resp.Leaves()), func() error {
			for _, l := range resp.Leaves() {
				if err := b.transport.Leave(ctx, l.Channel, l.Reason); err != nil {
					return flushError(ActionLeave, l.Channel, err)
				}
			}
			return nil
		}},
		{ActionMode, len(resp.Modes()), func() error {
			for _, m := range resp.Modes() {
				if err := b.transport.SetMode(ctx, m.Channel, m.Mode, m.Args...); err != nil {
					return flushError(ActionMode, m.Channel, err)
				}
			}
			return nil
		}},
		{ActionNotice, len(resp.Notices()), func() error {
			for _, n := range resp.Notices() {
				if err := b.transport.SendNotice(ctx, n.Target, n.Text); err != nil {
					return flushError(ActionNotice, n.Target, err)
				}
			}
			return nil
		}},
		{ActionAction, len(resp.Actions()), func() error {
			for _, a := range resp.Actions() {
				if err := b.transport.SendAction(ctx, a.Target, a.Text); err != nil {
					return flushError(ActionAction, a.Target, err)
				}
			}
			return nil
		}},
		{ActionMessage, len(resp.Messages()), func() error {
			for _, m := range resp.Messages() {
				text, err := b.encode(m.Text)
				if err != nil {
					return flushError(ActionMessage, m.Target, err)
				}
				if err := b.transport.SendMessage(ctx, m.Target, text); err != nil {
					return flushError(ActionMessage, m.Target, err)
				}
			}
			return nil
		}},
	}

	for _, step := range steps {
		if step.count == 0 {
			continue
		}
		if err := step.send(); err != nil {
			return err
		}
		recordActions(step.action, step.count)
	}
	return nil
}

func nickCount(resp *pluginsdk.Response) int {
	if _, ok := resp.NickChange(); ok {
		return 1
	}
	return 0
}

func flushError(action, target string, err error) error {
	return oops.In("bot").Code(CodeFlushFailed).
		With("action", action).With("target", target).
		Wrapf(err, "failed to send %s to %s", action, target)
}

// encode applies the configured outbound encoding to a message body.
func (b *Bot) encode(text string) (string, error) {
	if b.encoder == nil {
		return text, nil
	}
	return b.encoder.String(text)
}

// fail reports a failed dispatch: the full error goes to the log and a
// single line to the event's default target.
func (b *Bot) fail(ctx context.Context, q *pluginsdk.Query, err error) {
	errutil.LogError(ctx, b.logger, "event dispatch failed", err)

	target := q.DefaultTarget()
	if target == "" {
		return
	}
	summary := strings.TrimSpace(errutil.Summary(err))
	if summary == "" {
		summary = "internal error"
	}
	if sendErr := b.transport.SendNotice(ctx, target, summary); sendErr != nil {
		b.logger.WarnContext(ctx, "failed to send error notice", "target", target, "error", sendErr)
	}
}
