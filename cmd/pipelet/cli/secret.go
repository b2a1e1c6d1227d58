package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pipelet/pipelet/internal/infrastructure/config"
	"github.com/pipelet/pipelet/internal/infrastructure/secrets_file"
	"github.com/spf13/cobra"
)

var secretCmd = &cobra.Command{
	Use:   "secret",
	Short: "Manage the secret store (values are never printed)",
}

var secretSetCmd = &cobra.Command{
	Use:   "set <name> [value]",
	Short: "Store a secret; pass - or omit the value to read it from stdin",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return err
		}

		var value string
		if len(args) == 2 && args[1] != "-" {
			value = args[1]
		} else {
			b, err := io.ReadAll(os.Stdin)
			if err != nil {
				return err
			}
			value = strings.TrimRight(string(b), "\n")
		}
		if value == "" {
			return fmt.Errorf("empty value for secret %s", args[0])
		}

		if err := secrets_file.New(cfg.Secrets.File).Set(args[0], value); err != nil {
			return err
		}
		fmt.Printf("stored: %s\n", args[0])
		return nil
	},
}

var secretUnsetCmd = &cobra.Command{
	Use:   "unset <name>",
	Short: "Remove a secret",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		if err := secrets_file.New(cfg.Secrets.File).Unset(args[0]); err != nil {
			return err
		}
		fmt.Printf("removed: %s\n", args[0])
		return nil
	},
}

var secretLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List secret names",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		names, err := secrets_file.New(cfg.Secrets.File).Names()
		if err != nil {
			return err
		}
		for _, n := range names {
			fmt.Println(n)
		}
		return nil
	},
}

func init() {
	secretCmd.AddCommand(secretSetCmd, secretUnsetCmd, secretLsCmd)
	rootCmd.AddCommand(secretCmd)
}
