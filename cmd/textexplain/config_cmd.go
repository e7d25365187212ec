package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/textexplain/config"
)

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage textexplain configuration",
		Long: `Show the effective configuration or write a default config file.

Configuration hierarchy (highest to lowest priority):
  1. CLI flags
  2. Environment variables (TEXTEXPLAIN_*)
  3. Config file (~/.textexplain/config.yaml)
  4. Defaults`,
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := a.cfg.YAML()
			if err != nil {
				return err
			}
			if used := a.v.ConfigFileUsed(); used != "" {
				fmt.Fprintf(a.out, "# config file: %s\n", used)
			} else {
				fmt.Fprintln(a.out, "# no config file found, showing defaults and overrides")
			}
			_, err = a.out.Write(data)
			return err
		},
	}

	var (
		path  string
		force bool
	)
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				p, err := config.DefaultPath()
				if err != nil {
					return err
				}
				path = p
			}
			if err := config.Defaults().WriteFile(path, force); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Created configuration: %s\n", path)
			return nil
		},
	}
	initCmd.Flags().StringVar(&path, "path", "", "file to write (default: $HOME/.textexplain/config.yaml)")
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	cmd.AddCommand(show, initCmd)
	return cmd
}
