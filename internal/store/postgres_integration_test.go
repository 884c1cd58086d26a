// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cassium Contributors

//go:build integration

package store_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/samber/oops"

	"github.com/garcia/cassium/internal/store"
)

var _ = Describe("PostgresStore", Ordered, func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	It("reports a missing schema before migrating", func() {
		s, err := store.OpenPostgres(ctx, pgURL)
		Expect(err).NotTo(HaveOccurred())
		defer s.Close()

		_, err = s.Load(ctx, "hello.Hello")
		Expect(err).To(HaveOccurred())
		oopsErr, ok := oops.AsOops(err)
		Expect(ok).To(BeTrue())
		Expect(oopsErr.Code()).To(Equal(store.CodeNotMigrated))
	})

	It("migrates up, steps down and back up", func() {
		migrator, err := store.NewMigrator(pgURL)
		Expect(err).NotTo(HaveOccurred())
		defer migrator.Close()

		Expect(migrator.Up()).To(Succeed())
		version, dirty, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(Equal(uint(1)))
		Expect(dirty).To(BeFalse())

		Expect(migrator.Steps(-1)).To(Succeed())
		version, _, err = migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(BeZero())

		Expect(migrator.Up()).To(Succeed())
		pending, err := migrator.Pending()
		Expect(err).NotTo(HaveOccurred())
		Expect(pending).To(BeEmpty())
	})

	It("saves and loads plugin snapshots", func() {
		s, err := store.Open(ctx, pgURL)
		Expect(err).NotTo(HaveOccurred())
		defer s.Close()

		data, err := s.Load(ctx, "hello.Hello")
		Expect(err).NotTo(HaveOccurred())
		Expect(data).To(BeNil())

		Expect(s.Save(ctx, "hello.Hello", []byte("greeted: 1\n"))).To(Succeed())
		Expect(s.Save(ctx, "hello.Hello", []byte("greeted: 2\n"))).To(Succeed())

		data, err = s.Load(ctx, "hello.Hello")
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).To(Equal("greeted: 2\n"))
	})
})
