package main

import (
	"os"

	"github.com/iwvelando/lotbid/internal/config"
	"github.com/iwvelando/lotbid/pkg/constants"
	"github.com/iwvelando/lotbid/pkg/validation"
	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// app carries state shared by subcommands once the root pre-run has loaded
// configuration and logging.
type app struct {
	configPath   string
	logLevel     string
	outputFormat string
	dbPath       string

	conf   *config.Configuration
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "lotbid",
		Short:         "Value liquidation lots and recommend a maximum bid",
		Long:          "Aggregates price evidence per item, estimates sell-through, gates weak evidence, simulates lot outcomes and bisects for the highest bid meeting ROI, cash and throughput constraints.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", constants.DefaultConfigFile, "path to configuration file")
	flags.StringVar(&a.logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	flags.StringVar(&a.outputFormat, "output-format", "", "type of output override: pretty, json, csv")
	flags.StringVar(&a.dbPath, "db", "", "run history database (overrides storage.path)")

	root.AddCommand(newOptimizeCmd(a), newEvaluateCmd(a), newHistoryCmd(a))
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	// .env is optional
	_ = godotenv.Load()

	path := a.configPath
	if !cmd.Flags().Changed("config") {
		if _, err := os.Stat(path); err != nil {
			path = ""
		}
	}
	conf, err := config.LoadConfiguration(path)
	if err != nil {
		return eris.Wrapf(err, "failed to load configuration at %s", a.configPath)
	}
	a.conf = conf

	logger, err := initializeLogger(conf.Logging, a.logLevel)
	if err != nil {
		return eris.Wrap(err, "failed to initialize logger")
	}
	a.logger = logger

	if a.outputFormat == "" {
		a.outputFormat = conf.Output.Format
	}
	if a.outputFormat == "" {
		a.outputFormat = constants.OutputFormatPretty
	}
	if err := validation.ValidateOutputFormat(a.outputFormat); err != nil {
		return err
	}
	if a.dbPath == "" {
		a.dbPath = conf.Storage.Path
	}

	for _, warning := range conf.Warnings() {
		logger.Warn("Configuration warning: "+warning,
			zap.String("op", "main"),
		)
	}
	return nil
}
