// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cassium Contributors

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/garcia/cassium/internal/config"
)

// NewConfigSchemaCmd creates the config-schema subcommand.
func NewConfigSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config-schema",
		Short: "Print the JSON schema of the config file",
		Long: `Print the JSON schema the config file is checked against. Point an
editor's YAML language server at it for completion and inline errors.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := config.GenerateSchema()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return err
		},
	}
}

// NewValidateConfigCmd creates the validate-config subcommand.
func NewValidateConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate-config [file]",
		Short: "Check a config file without starting the bot",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath()
			if len(args) == 1 {
				path = args[0]
			}
			cfg, err := config.Load(path, nil)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if path == "" {
				cmd.Println("No config file found; defaults are valid")
				return nil
			}
			cmd.Printf("%s is valid\n", path)
			return nil
		},
	}
}
