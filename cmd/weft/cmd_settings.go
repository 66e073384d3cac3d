package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/weft-testbed/weft/pkg/cli"
	"github.com/weft-testbed/weft/pkg/settings"
)

func newSettingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Manage persistent settings",
		Long: `Manage persistent settings stored in ~/.weft/settings.json.

Settings provide defaults for flags and backends:
  - project:       Used when --project is not specified
  - output:        Default rendering for list/show (table or json)
  - state_backend: Slice record storage (file or redis)
  - redis_addr:    Redis endpoint when state_backend is redis

Examples:
  weft settings show
  weft settings set project my-project
  weft settings clear`,
	}

	cmd.AddCommand(
		newSettingsShowCmd(),
		newSettingsSetCmd(),
		newSettingsGetCmd(),
		newSettingsClearCmd(),
		newSettingsPathCmd(),
	)
	return cmd
}

func newSettingsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show current settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := settings.Load()
			if err != nil {
				return fmt.Errorf("loading settings: %w", err)
			}

			fmt.Printf("Settings file: %s\n\n", settings.DefaultSettingsPath())

			t := cli.NewTable("SETTING", "VALUE")

			printSetting := func(name, value string) {
				if value == "" {
					value = "(not set)"
				}
				t.Row(name, value)
			}

			printSetting("project", s.DefaultProject)
			printSetting("output", s.OutputFormat)
			printSetting("state_backend", s.StateBackend)
			printSetting("redis_addr", s.RedisAddr)

			t.Flush()
			return nil
		},
	}
}

func newSettingsSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <setting> <value>",
		Short: "Set a setting value",
		Long: `Set a persistent setting value.

Available settings:
  project       - Default project (--project flag default)
  output        - Default output format: table or json
  state_backend - Slice record storage: file or redis
  redis_addr    - Redis endpoint for the redis backend

Examples:
  weft settings set project my-project
  weft settings set state_backend redis
  weft settings set redis_addr hub.example.net:6379`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			setting := args[0]
			value := args[1]

			s, err := settings.Load()
			if err != nil {
				s = &settings.Settings{}
			}

			switch setting {
			case "project", "default_project":
				s.SetProject(value)
				fmt.Printf("Default project set to: %s\n", value)
			case "output", "output_format":
				if value != "table" && value != "json" {
					return fmt.Errorf("invalid output format: %s (valid: table, json)", value)
				}
				s.SetOutputFormat(value)
				fmt.Printf("Output format set to: %s\n", value)
			case "state_backend":
				if value != "file" && value != "redis" {
					return fmt.Errorf("invalid state backend: %s (valid: file, redis)", value)
				}
				s.SetStateBackend(value)
				fmt.Printf("State backend set to: %s\n", value)
			case "redis_addr":
				s.RedisAddr = value
				fmt.Printf("Redis address set to: %s\n", value)
			default:
				return fmt.Errorf("unknown setting: %s (valid: project, output, state_backend, redis_addr)", setting)
			}

			if err := s.Save(); err != nil {
				return fmt.Errorf("saving settings: %w", err)
			}
			return nil
		},
	}
}

func newSettingsGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <setting>",
		Short: "Get a setting value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := settings.Load()
			if err != nil {
				return fmt.Errorf("loading settings: %w", err)
			}

			var value string
			switch args[0] {
			case "project", "default_project":
				value = s.DefaultProject
			case "output", "output_format":
				value = s.OutputFormat
			case "state_backend":
				value = s.StateBackend
			case "redis_addr":
				value = s.RedisAddr
			default:
				return fmt.Errorf("unknown setting: %s (valid: project, output, state_backend, redis_addr)", args[0])
			}

			if value == "" {
				fmt.Println("(not set)")
			} else {
				fmt.Println(value)
			}
			return nil
		},
	}
}

func newSettingsClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Clear all settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			s := &settings.Settings{}
			if err := s.Save(); err != nil {
				return fmt.Errorf("saving settings: %w", err)
			}
			fmt.Println("All settings cleared.")
			return nil
		},
	}
}

func newSettingsPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show settings file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(settings.DefaultSettingsPath())
		},
	}
}
