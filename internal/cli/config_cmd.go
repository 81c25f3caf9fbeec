package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/soyeahso/chatconn/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Read and edit the config file",
	}
	cmd.AddCommand(
		newConfigGetCmd(),
		newConfigSetCmd(),
		newConfigUnsetCmd(),
		newConfigPathCmd(),
		newConfigValidateCmd(),
	)
	return cmd
}

// editRaw loads the raw config, applies fn to the parsed key and saves.
func editRaw(key string, fn func(raw map[string]any, path []string) error) error {
	path, err := config.ParseConfigPath(key)
	if err != nil {
		return err
	}
	raw, err := config.LoadRaw(paths.Config)
	if err != nil {
		return err
	}
	if raw == nil {
		raw = map[string]any{}
	}
	if err := fn(raw, path); err != nil {
		return err
	}
	if err := paths.EnsureDirs(); err != nil {
		return err
	}
	return config.SaveRaw(paths.Config, raw)
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Print a value, e.g. cache.ttlSeconds",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.ParseConfigPath(args[0])
			if err != nil {
				return err
			}
			raw, err := config.LoadRaw(paths.Config)
			if err != nil {
				return err
			}
			val, ok := config.GetValueAtPath(raw, path)
			if !ok {
				return fmt.Errorf("key %q not found", args[0])
			}
			return printValue(cmd.OutOrStdout(), val)
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a value; booleans and numbers are stored typed",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			value := parseValue(args[1])
			err := editRaw(args[0], func(raw map[string]any, path []string) error {
				config.SetValueAtPath(raw, path, value)
				return nil
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %v\n", args[0], value)
			return nil
		},
	}
}

func newConfigUnsetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unset <key>",
		Short: "Remove a value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			err := editRaw(args[0], func(raw map[string]any, path []string) error {
				if !config.UnsetValueAtPath(raw, path) {
					return fmt.Errorf("key %q not found", args[0])
				}
				return nil
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Unset %s\n", args[0])
			return nil
		},
	}
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file path",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), paths.Config)
		},
	}
}

func newConfigValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the config file for problems",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(paths.Config)
			if err != nil {
				return err
			}
			issues := config.Validate(&cfg)
			for _, issue := range issues {
				fmt.Fprintln(cmd.OutOrStdout(), issue)
			}
			if len(issues) > 0 {
				return fmt.Errorf("%d issue(s) found", len(issues))
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
}

func printValue(w io.Writer, v any) error {
	switch v.(type) {
	case map[string]any, []any:
		data, err := yaml.Marshal(v)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	default:
		_, err := fmt.Fprintln(w, v)
		return err
	}
}

// parseValue interprets s as a bool, integer or float before falling back
// to the string itself.
func parseValue(s string) any {
	switch strings.ToLower(s) {
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}
