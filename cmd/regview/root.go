package main

import (
	"errors"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/chis/regview/internal/bootstrap"
	"github.com/chis/regview/internal/config"
	"github.com/chis/regview/internal/logging"
	"github.com/chis/regview/internal/output"
)

// errReported is returned once a command has written its own error output.
var errReported = errors.New("error already reported")

// app holds the global flags and the state built from them before a command runs.
type app struct {
	configPath string
	envFile    string
	registry   string
	jsonOutput bool
	verbose    bool
	noColor    bool

	cfg    *config.Config
	logger *logging.Logger
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "regview",
		Short: "Browse a Docker Registry v2",
		Long: `regview lists the repositories, tags and image metadata of a Docker
Registry v2, deletes tags, and serves the same catalog as a JSON API.

Configuration is read from a YAML file, a .env file and the environment
(REGISTRY_API_URL, REGISTRY_URL, REGISTRY_NAME, PORT, ...), later sources
overriding earlier ones. Global flags override all of them.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "", "YAML config file (default $CONFIG_PATH or regview.yaml)")
	flags.StringVar(&a.envFile, "env-file", config.DefaultDotEnvPath, ".env file loaded before the environment is read")
	flags.StringVarP(&a.registry, "registry", "r", "", "registry API root including /v2 (overrides REGISTRY_API_URL)")
	flags.BoolVar(&a.jsonOutput, "json", false, "write results as JSON")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "verbose logging")
	flags.BoolVar(&a.noColor, "no-color", false, "disable colored output")

	root.AddCommand(
		newServeCommand(a),
		newBrowseCommand(a),
		newReposCommand(a),
		newTagsCommand(a),
		newInspectCommand(a),
		newDeleteCommand(a),
		newVersionCommand(a),
	)
	return root
}

// setup loads the configuration and the logger shared by every command.
func (a *app) setup(cmd *cobra.Command) error {
	if a.noColor {
		color.NoColor = true
	}

	if err := config.LoadDotEnv(a.envFile); err != nil {
		return a.fail(cmd, err, nil)
	}
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return a.fail(cmd, err, nil)
	}

	if a.registry != "" {
		cfg.Registry.APIURL = strings.TrimRight(a.registry, "/")
		if base, ok := strings.CutSuffix(cfg.Registry.APIURL, "/v2"); ok && os.Getenv(config.EnvRegistryURL) == "" {
			cfg.Registry.URL = base
		}
	}
	a.cfg = cfg

	logger := logging.New()
	logger.SetOutput(cmd.ErrOrStderr())
	switch {
	case a.verbose:
		logger.SetLevel(logging.LevelDebug)
		logger.EnableCaller(true)
	case os.Getenv("LOG_LEVEL") != "":
		// Keep the level New read from LOG_LEVEL
	case cmd.Name() == "serve":
		logger.SetLevel(logging.LevelInfo)
	default:
		// One-shot commands only surface problems
		logger.SetLevel(logging.LevelWarn)
	}
	logging.SetDefault(logger)
	a.logger = logger

	return nil
}

// services builds the registry client, resolver and orchestrator from the loaded config.
func (a *app) services(withRefresher bool) (*bootstrap.ServiceDependencies, func(), error) {
	return bootstrap.InitializeServices(bootstrap.InitOptions{
		Config:        a.cfg,
		Logger:        a.logger,
		WithRefresher: withRefresher,
		Verbose:       a.verbose,
	})
}

// emit writes data as a JSON envelope in --json mode and calls human otherwise.
func (a *app) emit(cmd *cobra.Command, data interface{}, human func(w io.Writer) error) error {
	if a.jsonOutput {
		return output.WriteJSONData(cmd.OutOrStdout(), data)
	}
	return human(cmd.OutOrStdout())
}

// fail reports err. In --json mode it writes an error envelope, carrying
// data when given, and returns errReported.
func (a *app) fail(cmd *cobra.Command, err error, data interface{}) error {
	if !a.jsonOutput {
		return err
	}
	out := cmd.OutOrStdout()
	if data != nil {
		output.WriteJSONErrorWithData(out, err, data)
	} else {
		output.WriteJSONError(out, err)
	}
	return errReported
}

// warnf prints a highlighted warning to stderr outside --json mode.
func (a *app) warnf(cmd *cobra.Command, format string, args ...interface{}) {
	if a.jsonOutput {
		return
	}
	color.New(color.FgYellow).Fprintf(cmd.ErrOrStderr(), "Warning: "+format+"\n", args...)
}
