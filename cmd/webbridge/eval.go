package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/cryguy/webbridge"
)

const blankPage = "<!DOCTYPE html><html><head></head><body></body></html>"

var evalFlags struct {
	src        string
	capability string
	promise    bool
	timeout    time.Duration
}

var evalCmd = &cobra.Command{
	Use:   "eval [flags] <script>",
	Short: "Evaluate a script in a headless page and print the result as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runEval,
}

func init() {
	f := evalCmd.Flags()
	f.StringVar(&evalFlags.src, "src", "", "page to load first: URL, file path or HTML markup")
	f.StringVar(&evalFlags.capability, "capability", "", "transport the page exposes (android, webkit, legacy)")
	f.BoolVar(&evalFlags.promise, "promise", false, "treat the script as a promise and print what it resolves to")
	f.DurationVar(&evalFlags.timeout, "timeout", 0, "promise timeout (default from config)")
}

func runEval(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if evalFlags.capability != "" {
		cfg.Capability = evalFlags.capability
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	reg, err := openResources(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = reg.Close() }()

	w, err := webbridge.NewHeadless(bridgeConfig(cfg), cfg.PageCapability(), webbridge.WithResources(reg))
	if err != nil {
		return err
	}
	defer func() { _ = w.Close() }()
	applyAutoLoad(w, cfg)

	src := evalFlags.src
	if src == "" {
		src = blankPage
	}
	if _, err := w.LoadURL(ctx, src); err != nil {
		return fmt.Errorf("load %s: %w", evalFlags.src, err)
	}

	result, err := evaluate(ctx, w, args[0])
	if err != nil {
		var we *webbridge.WebError
		if errors.As(err, &we) && we.NativeStack != "" {
			fmt.Fprintln(cmd.ErrOrStderr(), we.NativeStack)
		}
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func evaluate(ctx context.Context, w *webbridge.WebView, script string) (any, error) {
	if evalFlags.promise {
		return w.ExecutePromise(ctx, script, evalFlags.timeout)
	}
	return w.ExecuteJavaScript(ctx, script, true)
}
