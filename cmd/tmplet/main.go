package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/davecgh/go-spew/spew"
	"github.com/metadream/tmplet"
	"github.com/natefinch/atomic"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

type app struct {
	configPath string
	engine     *tmplet.Engine
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:          "tmplet",
		Short:        "Compile and render tmplet templates",
		Version:      fmt.Sprintf("%s (commit %s, built %s)", Version, Commit, BuildDate),
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "tmplet.json", "path to the config file")
	root.AddCommand(a.renderCmd(), a.compileCmd(), a.inspectCmd())
	return root
}

func (a *app) setup() error {
	config, err := LoadConfig(a.configPath)
	if err != nil {
		return err
	}
	a.engine = tmplet.NewEngine(config.Root)
	a.engine.SetLogger(newLogger(config.LogLevel))
	a.engine.SetOptions(tmplet.Options{Imports: config.Imports})
	return nil
}

func (a *app) renderCmd() *cobra.Command {
	var dataPath string
	cmd := &cobra.Command{
		Use:   "render <view>",
		Short: "Render a view to stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := map[string]any{}
			if dataPath != "" {
				raw, err := os.ReadFile(dataPath)
				if err != nil {
					return fmt.Errorf("failed to read data file: %w", err)
				}
				if err = json.Unmarshal(raw, &ctx); err != nil {
					return fmt.Errorf("failed to parse data file %s: %w", dataPath, err)
				}
			}
			return a.engine.Execute(cmd.OutOrStdout(), args[0], ctx)
		},
	}
	cmd.Flags().StringVarP(&dataPath, "data", "d", "", "JSON file with the render context")
	return cmd
}

func (a *app) compileCmd() *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "compile <view>",
		Short: "Print the generated function for a view",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := a.engine.Lookup(args[0])
			if err != nil {
				return err
			}
			if outPath == "" {
				_, err = fmt.Fprintln(cmd.OutOrStdout(), t.Source())
				return err
			}
			return atomic.WriteFile(outPath, strings.NewReader(t.Source()))
		},
	}
	cmd.Flags().StringVarP(&outPath, "output", "o", "", "write the generated function to a file")
	return cmd
}

func (a *app) inspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <view>",
		Short: "Dump the instructions and free variables of a view",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := a.engine.Lookup(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "vars: %s\n", strings.Join(t.Vars(), ", "))
			spew.Fdump(out, t.Instructions())
			return nil
		},
	}
}
