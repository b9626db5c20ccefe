package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/MegaGrindStone/go-jsonrpc"
	"github.com/MegaGrindStone/go-jsonrpc/internal/config"
	"github.com/MegaGrindStone/go-jsonrpc/servers/everything"
	"github.com/MegaGrindStone/go-jsonrpc/servers/filesystem"
	"github.com/MegaGrindStone/go-jsonrpc/servers/memory"
)

type app struct {
	v       *viper.Viper
	cfgFile string

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

func newApp(stdin io.Reader, stdout, stderr io.Writer) *app {
	return &app{
		v:      config.NewViper(),
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
	}
}

func (a *app) root() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "jsonrpcd",
		Short:        "Serve capabilities over JSON-RPC 2.0",
		SilenceUsage: true,
	}
	cmd.SetIn(a.stdin)
	cmd.SetOut(a.stdout)
	cmd.SetErr(a.stderr)

	flags := cmd.PersistentFlags()
	flags.StringVarP(&a.cfgFile, "config", "c", "", "Configuration file (.toml, .yaml or .yml)")
	flags.String("log-level", "", "Log level: debug, info, warn or error")
	flags.String("log-format", "", "Log format: text or json")
	flags.StringSlice("sets", nil, "Enabled capability sets: everything, filesystem, memory")
	flags.StringSlice("expose", nil, "Only register capabilities matching these glob patterns")
	flags.StringSlice("roots", nil, "Directories the filesystem set may access")
	flags.String("memory-file", "", "File backing the memory set")
	a.bind(flags, map[string]string{
		"log-level":   "log.level",
		"log-format":  "log.format",
		"sets":        "capabilities.sets",
		"expose":      "capabilities.expose",
		"roots":       "capabilities.filesystem.roots",
		"memory-file": "capabilities.memory.file",
	})

	cmd.AddCommand(a.serveCommand(), a.callCommand(), a.capabilitiesCommand(), a.configCommand())
	return cmd
}

// bind maps flag names to configuration keys.
func (a *app) bind(flags *pflag.FlagSet, keys map[string]string) {
	for name, key := range keys {
		if err := a.v.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(fmt.Sprintf("failed to bind flag %s: %v", name, err))
		}
	}
}

func (a *app) load() (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(a.v, a.cfgFile)
	if err != nil {
		return config.Config{}, nil, err
	}
	logger, err := cfg.Log.NewLogger(a.stderr)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

// buildRegistry registers the enabled capability sets, restricted to the exposed names.
func buildRegistry(cfg config.Config, logger *slog.Logger) (*jsonrpc.Registry, error) {
	b := jsonrpc.NewRegistryBuilder()

	if cfg.Capabilities.Enabled(config.SetEverything) {
		everything.NewServer(everything.WithLogger(logger)).Register(b)
	}
	if cfg.Capabilities.Enabled(config.SetFilesystem) {
		fs, err := filesystem.NewServer(cfg.Capabilities.Filesystem.Roots, filesystem.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("failed to create filesystem server: %w", err)
		}
		fs.Register(b)
	}
	if cfg.Capabilities.Enabled(config.SetMemory) {
		memory.NewServer(cfg.Capabilities.Memory.File).Register(b)
	}

	registry, err := b.Expose(cfg.Capabilities.Expose...).Build()
	if err != nil {
		return nil, err
	}
	logger.Debug("registry built", slog.Int("capabilities", registry.Len()))
	return registry, nil
}

func (a *app) capabilitiesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "capabilities",
		Short: "List the registered capability names",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := a.load()
			if err != nil {
				return err
			}
			registry, err := buildRegistry(cfg, logger)
			if err != nil {
				return err
			}
			for _, name := range registry.Names() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}

func (a *app) configCommand() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(a.v, a.cfgFile)
			if err != nil {
				return err
			}
			return config.Encode(cmd.OutOrStdout(), cfg, format)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "toml", "Output format: toml or yaml")
	return cmd
}
