// Command webbridge drives web pages through the bridge: it evaluates
// scripts in a headless page or serves real browsers over a websocket.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cryguy/webbridge"
	"github.com/cryguy/webbridge/internal/config"
	"github.com/cryguy/webbridge/internal/log"
)

// version is set at build time.
var version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:           "webbridge",
	Short:         "Host side of the web view bridge",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log.Configure(log.Config{Level: cfg.LogLevel})
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version and script engine",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintf(cmd.OutOrStdout(), "webbridge %s (%s)\n", version, webbridge.EngineName)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (YAML)")
	rootCmd.AddCommand(versionCmd, evalCmd, serveCmd)
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// bridgeConfig maps the tool configuration onto WebView settings.
func bridgeConfig(cfg config.Config) webbridge.Config {
	return webbridge.Config{
		PromiseTimeout:   cfg.PromiseTimeout,
		AutoInjectBridge: cfg.AutoInjectBridge,
		ViewPort:         webbridge.ParseViewPort(cfg.ViewPort),
		AppRoot:          cfg.AppRoot,
		MemoryLimitMB:    cfg.MemoryLimitMB,
		EvalTimeout:      cfg.EvalTimeout,
	}
}

// openResources builds the registry shared by every WebView the command
// creates and registers the configured resources.
func openResources(cfg config.Config) (*webbridge.ResourceRegistry, error) {
	opts := webbridge.ResourceOptions{AppRoot: cfg.AppRoot}
	if cfg.ResourceDB != "" {
		store, err := webbridge.OpenResourceStore(cfg.ResourceDB)
		if err != nil {
			return nil, fmt.Errorf("open resource store: %w", err)
		}
		opts.Store = store
	}
	reg := webbridge.NewResourceRegistry(opts)
	for name, path := range cfg.Resources {
		reg.Register(name, path)
	}
	return reg, nil
}

// applyAutoLoad registers the configured auto-load files on w. Entries
// are named after their path.
func applyAutoLoad(w *webbridge.WebView, cfg config.Config) {
	for _, path := range cfg.AutoLoadScripts {
		w.AutoLoadJavaScriptFile(path, path)
	}
	for _, path := range cfg.AutoLoadStyleSheets {
		w.AutoLoadStyleSheetFile(path, path, false)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "webbridge:", err)
		os.Exit(1)
	}
}
