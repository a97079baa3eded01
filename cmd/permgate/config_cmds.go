package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/oarkflow/permgate"
)

func loadConfig(path string) (*permgate.Config, error) {
	return permgate.NewConfigLoader().LoadFile(path)
}

func saveConfig(cfg *permgate.Config, path string) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = cfg.ToYAML()
	case ".json":
		data, err = cfg.ToJSON()
	default:
		return fmt.Errorf("unsupported output format %q", filepath.Ext(path))
	}
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Validate a configuration file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(args[0])
			if err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			cmd.Println("Configuration is valid")
			cmd.Printf("  Version: %d\n", cfg.Version)
			cmd.Printf("  Session driver: %s\n", cfg.Session.Driver)
			cmd.Printf("  Strict fallback: %t\n", cfg.Fallback.Strict)
			cmd.Printf("  Menu items: %d\n", len(cfg.Menu))
			cmd.Printf("  Routes: %d\n", len(cfg.Routes))
			cmd.Printf("  Policies: %d\n", len(cfg.Policies))
			return nil
		},
	}
}

func newConvertCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "convert <input> <output>",
		Short: "Convert a configuration between YAML and JSON",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(args[0])
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := saveConfig(cfg, args[1]); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			cmd.Printf("Converted %s -> %s\n", args[0], args[1])
			return nil
		},
	}
}

func newRoutesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "routes [file]",
		Short: "Print the route table in match order",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := permgate.DefaultConfig()
			if len(args) == 1 {
				var err error
				if cfg, err = loadConfig(args[0]); err != nil {
					return err
				}
			}
			table, err := permgate.NewRouteTable(cfg.Routes)
			if err != nil {
				return err
			}
			for _, r := range table.Routes() {
				cmd.Printf("%-48s %s\n", r.Pattern, describeRoute(r))
			}
			return nil
		},
	}
}

func describeRoute(r permgate.Route) string {
	if r.Public {
		return "public"
	}
	if len(r.Permissions) == 0 {
		return "any signed-in user"
	}
	names := make([]string, len(r.Permissions))
	for i, p := range r.Permissions {
		names[i] = p.String()
	}
	mode := "any of"
	if r.RequireAll {
		mode = "all of"
	}
	out := mode + " " + strings.Join(names, ", ")
	if r.Fallback != "" {
		out += " (else " + r.Fallback + ")"
	}
	return out
}

func newResolveCommand() *cobra.Command {
	var (
		role  string
		perms string
		best  bool
	)
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Print the landing page for a role and permission map",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m := permgate.PermissionMap{}
			if perms != "" {
				if err := json.Unmarshal([]byte(perms), &m); err != nil {
					return fmt.Errorf("decode --permissions: %w", err)
				}
			}
			if best {
				cmd.Println(permgate.BestAvailableRoute(m))
				return nil
			}
			cmd.Println(permgate.ResolveDefaultRoute(permgate.Role(role), m))
			return nil
		},
	}
	cmd.Flags().StringVar(&role, "role", "", "Role name, e.g. lead_manager.")
	cmd.Flags().StringVar(&perms, "permissions", "", `Permission map as JSON, e.g. {"leads":{"view":true}}.`)
	cmd.Flags().BoolVar(&best, "best", false, "Ignore the role and print the best available route.")
	return cmd
}

func newInitCommand() *cobra.Command {
	var (
		backendURL string
		driver     string
		dsn        string
		redisAddr  string
		strict     bool
		force      bool
	)
	cmd := &cobra.Command{
		Use:   "init <file>",
		Short: "Write a starter configuration with the console menu and routes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(args[0]); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", args[0])
			}
			b := permgate.NewConfigBuilder().WithDefaultConsole().StrictFallback(strict)
			if backendURL != "" {
				b.Backend(backendURL, permgate.DefaultConfig().Backend.TimeoutMs)
			}
			switch driver {
			case permgate.SessionDriverSQLite:
				b.SQLiteSessions(dsn)
			case permgate.SessionDriverRedis:
				b.RedisSessions(redisAddr, 0)
			default:
				b.MemorySessions()
			}
			cfg, err := b.Build()
			if err != nil {
				return err
			}
			if err := saveConfig(cfg, args[0]); err != nil {
				return err
			}
			cmd.Printf("Wrote %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&backendURL, "backend", "", "Backend API base URL.")
	cmd.Flags().StringVar(&driver, "driver", permgate.SessionDriverMemory, "Session driver: memory, sqlite or redis.")
	cmd.Flags().StringVar(&dsn, "dsn", "permgate.db", "SQLite DSN for the sqlite driver.")
	cmd.Flags().StringVar(&redisAddr, "redis-addr", "localhost:6379", "Redis address for the redis driver.")
	cmd.Flags().BoolVar(&strict, "strict", false, "Disable the cached-user fallback.")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file.")
	return cmd
}
