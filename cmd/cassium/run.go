// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cassium Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/garcia/cassium/internal/access"
	"github.com/garcia/cassium/internal/bot"
	"github.com/garcia/cassium/internal/builtin/control"
	"github.com/garcia/cassium/internal/builtin/session"
	"github.com/garcia/cassium/internal/config"
	"github.com/garcia/cassium/internal/irc"
	"github.com/garcia/cassium/internal/logging"
	"github.com/garcia/cassium/internal/observability"
	plugins "github.com/garcia/cassium/internal/plugin"
	"github.com/garcia/cassium/internal/plugin/lua"
	"github.com/garcia/cassium/internal/store"
)

// shutdownTimeout bounds saving state and quitting after the bot stops.
const shutdownTimeout = 10 * time.Second

// runDeps holds the pieces of the run command that tests replace.
type runDeps struct {
	// OpenStore opens the plugin state store.
	OpenStore func(ctx context.Context, dsn string) (store.Store, error)
	// Dial replaces the irc client's network dialer when set.
	Dial irc.DialFunc
	// Exec replaces the process image after a restart.
	Exec func() error
	// Logger replaces the logger built from the configuration when set.
	Logger *slog.Logger
}

func (d *runDeps) withDefaults() *runDeps {
	if d == nil {
		d = &runDeps{}
	}
	if d.OpenStore == nil {
		d.OpenStore = store.Open
	}
	if d.Exec == nil {
		d.Exec = execSelf
	}
	return d
}

// NewRunCmd creates the run subcommand.
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Connect to the server and run the bot",
		Long: `Connect to the configured server, load the plugins and dispatch
events until interrupted. Flags override the config file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd.Flags())
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runWithDeps(ctx, cfg, nil)
		},
	}
	config.BindFlags(cmd.Flags())
	return cmd
}

// runWithDeps runs the bot and, when it stopped for a restart, replaces the
// process once every resource has been released.
func runWithDeps(ctx context.Context, cfg *config.Config, deps *runDeps) error {
	deps = deps.withDefaults()
	restart, err := runBot(ctx, cfg, deps)
	if err != nil {
		return err
	}
	if restart {
		return deps.Exec()
	}
	return nil
}

// runBot wires the bot together and blocks until ctx is done, the
// connection is given up or a restart was requested.
func runBot(ctx context.Context, cfg *config.Config, deps *runDeps) (restart bool, err error) {
	logger := deps.Logger
	if logger == nil {
		level, err := cfg.LogLevel()
		if err != nil {
			return false, err
		}
		logger = logging.SetDefault("cassium", version, logging.Options{Format: cfg.Log.Format, Level: level})
	}

	dsn, err := storeDSN(cfg)
	if err != nil {
		return false, err
	}
	st, err := deps.OpenStore(ctx, dsn)
	if err != nil {
		return false, err
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Warn("failed to close store", "error", closeErr)
		}
	}()
	logger.InfoContext(ctx, "opened state store", "dsn", store.Redact(dsn))

	admins, err := access.NewAdminList(cfg.Admins)
	if err != nil {
		return false, err
	}
	enc, err := bot.LookupEncoding(cfg.Encoding)
	if err != nil {
		return false, err
	}

	manager := plugins.NewManager(cfg.Plugins.Dir, plugins.NewRegistry(),
		plugins.WithHost(lua.NewHost(lua.WithLogger(logger))),
		plugins.WithStateStore(st),
		plugins.WithLogger(logger),
	)
	if err := loadPlugins(ctx, manager, cfg.Plugins.Autoload); err != nil {
		return false, err
	}
	logger.InfoContext(ctx, "plugins loaded", "dir", cfg.Plugins.Dir, "plugins", manager.Registry().Names())

	clientOpts := []irc.Option{irc.WithLogger(logger)}
	if deps.Dial != nil {
		clientOpts = append(clientOpts, irc.WithDialer(deps.Dial))
	}
	client := irc.New(irc.Config{
		Host:             cfg.Server.Host,
		Port:             cfg.Server.Port,
		TLS:              cfg.Server.TLS,
		Password:         cfg.Server.Password,
		Nick:             cfg.Nick,
		Username:         cfg.Username,
		Realname:         cfg.Realname,
		NickServPassword: cfg.NickServPassword,
	}, clientOpts...)

	botOpts := []bot.Option{
		bot.WithLogger(logger),
		bot.WithAdmins(admins),
		bot.WithEncoding(enc),
	}

	// The client and watcher outlive ctx so that state can be saved and
	// QUIT sent after an interrupt.
	bgCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()
	var g errgroup.Group

	if cfg.Plugins.Watch {
		watcher, err := plugins.NewWatcher(manager, plugins.WithWatchLogger(logger))
		if err != nil {
			return false, err
		}
		botOpts = append(botOpts, bot.WithReloads(watcher.Reloads()))
		g.Go(func() error { return watcher.Run(bgCtx) })
	}

	b := bot.New(client, manager, botOpts...)
	if err := b.Install(ctx, control.New(admins, control.WithPrefix(cfg.CommandPrefix))); err != nil {
		cancel()
		return false, errors.Join(err, g.Wait())
	}
	if err := b.Install(ctx, session.New(cfg.Channels...)); err != nil {
		cancel()
		return false, errors.Join(err, g.Wait())
	}

	if cfg.MetricsAddr != "" {
		srv := observability.NewServer(cfg.MetricsAddr, client.Connected,
			observability.WithMetrics(bot.RegisterMetrics),
			observability.WithLogger(logger),
		)
		errCh, err := srv.Start()
		if err != nil {
			cancel()
			return false, errors.Join(err, g.Wait())
		}
		defer func() {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer stopCancel()
			if err := srv.Stop(stopCtx); err != nil {
				logger.Warn("failed to stop observability server", "error", err)
			}
		}()
		go func() {
			for err := range errCh {
				logger.Error("observability server failed", "error", err)
			}
		}()
	}

	g.Go(func() error { return client.Run(bgCtx) })
	logger.InfoContext(ctx, "connecting", "addr", cfg.Server.Host, "port", cfg.Server.Port, "nick", cfg.Nick)

	runErr := b.Run(ctx, client.Events())
	restart = errors.Is(runErr, bot.ErrRestart)
	if restart {
		runErr = nil
	}

	shutdownErr := shutdown(b, client, restart, logger)
	cancel()
	if err := g.Wait(); err != nil && runErr == nil {
		runErr = err
	}
	return restart, errors.Join(runErr, shutdownErr)
}

// loadPlugins scans the plugin root and then loads each autoload path. An
// autoload path that yields no plugins stops startup.
func loadPlugins(ctx context.Context, manager *plugins.Manager, autoload []string) error {
	if err := manager.Discover(ctx); err != nil {
		return err
	}
	for _, path := range autoload {
		if _, err := manager.Load(ctx, path); err != nil {
			return oops.In("cassium").With("path", path).Wrapf(err, "failed to autoload %s", path)
		}
	}
	return nil
}

// shutdown saves every plugin and quits the server. After a restart both
// already happened during the event that requested it.
func shutdown(b *bot.Bot, client *irc.Client, restarted bool, logger *slog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	reason := "Shutting down"
	var saveErr error
	if restarted {
		reason = "Restarting"
	} else {
		saveErr = b.SaveAll(ctx)
		if saveErr != nil {
			logger.ErrorContext(ctx, "failed to save plugins", "error", saveErr)
		}
	}

	if err := client.Quit(ctx, reason); err != nil {
		logger.WarnContext(ctx, "failed to quit cleanly", "error", err)
	}
	logger.InfoContext(ctx, "stopped", "reason", reason)
	return saveErr
}

func execSelf() error {
	exe, err := os.Executable()
	if err != nil {
		return oops.In("cassium").Wrapf(err, "failed to find executable for restart")
	}
	//nolint:gosec // re-executing our own binary with our own arguments
	if err := syscall.Exec(exe, os.Args, os.Environ()); err != nil {
		return oops.In("cassium").With("exe", exe).Wrapf(err, "failed to restart")
	}
	return nil
}
