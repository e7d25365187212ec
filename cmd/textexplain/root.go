package main

import (
	"io"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/YuminosukeSato/textexplain/config"
	"github.com/YuminosukeSato/textexplain/pkg/log"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// app holds the state shared by the subcommands of one invocation.
type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     *config.Config
	logger  log.Logger
	runID   string
	out     io.Writer
	errOut  io.Writer

	// flag name -> config key, applied for the command being executed only,
	// since several commands bind flags to the same key
	bindings map[*cobra.Command]map[string]string
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	a := &app{
		v:        viper.New(),
		out:      out,
		errOut:   errOut,
		bindings: make(map[*cobra.Command]map[string]string),
	}

	root := &cobra.Command{
		Use:   "textexplain",
		Short: "Explain a bag-of-words text classifier",
		Long: `textexplain loads a labeled sentence dataset, fits a logistic regression
over word counts with a cross-validated search of the regularization strength,
reports accuracy, precision, recall and F1, and explains predictions by the
signed contribution of each word.

Configuration hierarchy (highest to lowest priority):
  1. CLI flags
  2. Environment variables (TEXTEXPLAIN_*)
  3. Config file (~/.textexplain/config.yaml)
  4. Defaults`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default: $HOME/.textexplain/config.yaml)")
	root.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	root.PersistentFlags().String("log-format", "", "log format: console or json")
	_ = a.v.BindPFlag("log.level", root.PersistentFlags().Lookup("log-level"))
	_ = a.v.BindPFlag("log.format", root.PersistentFlags().Lookup("log-format"))

	root.AddCommand(
		newRunCmd(a),
		newExplainCmd(a),
		newConfigCmd(a),
		newVersionCmd(a),
	)
	return root
}

// bindFlags ties flags of cmd to config keys. An unset flag leaves its key alone.
func (a *app) bindFlags(cmd *cobra.Command, keys map[string]string) {
	a.bindings[cmd] = keys
}

// setup reads the configuration and installs the zerolog backend.
func (a *app) setup(cmd *cobra.Command) error {
	for name, key := range a.bindings[cmd] {
		if err := a.v.BindPFlag(key, cmd.Flags().Lookup(name)); err != nil {
			return err
		}
	}
	if err := config.Init(a.v, a.cfgFile); err != nil {
		return err
	}
	cfg, err := config.Load(a.v)
	if err != nil {
		return err
	}
	a.cfg = cfg

	level, err := log.ToLogLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	provider := log.NewZerologProvider(a.errOut, log.FromSlogLevel(level), cfg.Log.Format == "console")
	log.SetProvider(provider)
	provider.Root().RouteWarnings()

	a.runID = uuid.NewString()
	a.logger = provider.GetLoggerWithName("textexplain").With(log.RunIDKey, a.runID)
	if used := a.v.ConfigFileUsed(); used != "" {
		a.logger.Debug("Using config file", log.PathKey, used)
	}
	return nil
}

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := io.WriteString(a.out, "textexplain "+version+"\n")
			return err
		},
	}
}
