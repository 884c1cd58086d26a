// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cassium Contributors

package bot_test

import (
	"context"
	"errors"
	"log/slog"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/garcia/cassium/internal/access"
	"github.com/garcia/cassium/internal/bot"
	"github.com/garcia/cassium/internal/builtin/control"
	pluginsdk "github.com/garcia/cassium/pkg/plugin"
)

var _ = Describe("Dispatching events", func() {
	var (
		ctx       context.Context
		log       *callLog
		source    *fakeSource
		transport *fakeTransport
		b         *bot.Bot
	)

	reply := func(name, text string, triggers ...string) *testPlugin {
		return onMessage(name, func(_ context.Context, _ *pluginsdk.Query, r *pluginsdk.Response) error {
			r.Msg(text)
			return nil
		}, triggers...)
	}

	BeforeEach(func() {
		ctx = context.Background()
		log = &callLog{}
		source = newFakeSource(log)
		transport = &fakeTransport{log: log, nick: "cassium"}

		admins, err := access.NewAdminList([]string{"alice"})
		Expect(err).NotTo(HaveOccurred())
		b = bot.New(transport, source,
			bot.WithAdmins(admins),
			bot.WithLogger(slog.New(slog.DiscardHandler)),
		)
		Expect(b.Install(ctx, control.New(admins))).To(Succeed())
	})

	Describe("the control plugin", func() {
		It("joins a channel for an admin", func() {
			Expect(b.Dispatch(ctx, message("alice", "#ops", "`join #test"))).To(Succeed())
			Expect(log.all()).To(Equal([]string{"join #test"}))
		})

		It("refuses a non-admin and joins nothing", func() {
			Expect(b.Dispatch(ctx, message("mallory", "#ops", "`join #test"))).To(Succeed())
			Expect(log.all()).To(Equal([]string{"msg #ops " + control.Refusal}))
		})

		It("reports a targeted import that finds nothing as an error", func() {
			Expect(b.Dispatch(ctx, message("alice", "#ops", "`import nothing.here"))).To(Succeed())
			Expect(log.all()).To(Equal([]string{"notice #ops no plugins found at nothing.here"}))
		})

		It("imports a plugin that then receives later events", func() {
			source.loads["hello"] = []pluginsdk.Plugin{reply("hello.Hello", "Hello, alice!", "`hello$")}

			Expect(b.Dispatch(ctx, message("alice", "#ops", "`import hello"))).To(Succeed())
			Expect(b.Dispatch(ctx, message("alice", "#ops", "`hello"))).To(Succeed())
			Expect(log.all()).To(Equal([]string{"msg #ops Loaded hello.", "msg #ops Hello, alice!"}))
		})

		It("saves state before restarting", func() {
			err := b.Dispatch(ctx, message("alice", "#ops", "`restart"))
			Expect(errors.Is(err, bot.ErrRestart)).To(BeTrue())
			Expect(log.all()).To(Equal([]string{
				"save all",
				"save " + control.Name,
				"disconnect Restarting",
			}))
		})
	})

	Describe("plugins sharing a trigger", func() {
		It("runs both in registry order and flushes both messages", func() {
			_, err := source.registry.Upsert(reply("a.First", "first", "`hello$"))
			Expect(err).NotTo(HaveOccurred())
			_, err = source.registry.Upsert(reply("b.Second", "second", "`hello$"))
			Expect(err).NotTo(HaveOccurred())

			Expect(b.Dispatch(ctx, message("bob", "#test", "`hello"))).To(Succeed())
			Expect(log.all()).To(Equal([]string{"msg #test first", "msg #test second"}))
		})
	})

	Describe("flush order", func() {
		It("sends a later plugin's kick before an earlier plugin's message", func() {
			_, err := source.registry.Upsert(reply("a.Talker", "talking"))
			Expect(err).NotTo(HaveOccurred())
			_, err = source.registry.Upsert(onMessage("b.Kicker", func(_ context.Context, _ *pluginsdk.Query, r *pluginsdk.Response) error {
				r.Kick("#test", "mallory", "bye")
				return nil
			}))
			Expect(err).NotTo(HaveOccurred())

			Expect(b.Dispatch(ctx, message("bob", "#test", "anything"))).To(Succeed())
			Expect(log.all()).To(Equal([]string{"kick #test mallory bye", "msg #test talking"}))
		})
	})

	Describe("a failing handler", func() {
		BeforeEach(func() {
			_, err := source.registry.Upsert(onMessage("a.Joiner", func(_ context.Context, _ *pluginsdk.Query, r *pluginsdk.Response) error {
				r.Join("#elsewhere", "")
				return nil
			}))
			Expect(err).NotTo(HaveOccurred())
			_, err = source.registry.Upsert(onMessage("b.Broken", func(_ context.Context, q *pluginsdk.Query, r *pluginsdk.Response) error {
				r.Msg("second word is " + q.Words[1])
				return nil
			}))
			Expect(err).NotTo(HaveOccurred())
		})

		It("never sends the join queued before the fault", func() {
			Expect(b.Dispatch(ctx, message("bob", "#test", "go"))).To(Succeed())
			Expect(log.all()).NotTo(ContainElement("join #elsewhere"))
		})

		It("sends exactly one error notice to the default target", func() {
			Expect(b.Dispatch(ctx, message("bob", "#test", "go"))).To(Succeed())
			Expect(log.all()).To(HaveLen(1))
			Expect(log.all()[0]).To(HavePrefix("notice #test b.Broken crashed handling message"))
		})

		It("keeps dispatching later events", func() {
			Expect(b.Dispatch(ctx, message("bob", "#test", "go"))).To(Succeed())
			log.reset()
			Expect(b.Dispatch(ctx, pluginsdk.Event{Kind: pluginsdk.KindJoin, Source: "carol!c@host", Channel: "#test"})).To(Succeed())
			Expect(log.all()).To(BeEmpty())
		})
	})

	Describe("events without a user source", func() {
		It("dispatches nothing", func() {
			_, err := source.registry.Upsert(reply("a.Any", "seen"))
			Expect(err).NotTo(HaveOccurred())

			Expect(b.Dispatch(ctx, pluginsdk.Event{Kind: pluginsdk.KindMessage, Source: "irc.example.net", Channel: "#test", Text: "`join #x"})).To(Succeed())
			Expect(log.all()).To(BeEmpty())
		})
	})
})
