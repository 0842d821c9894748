package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/lex00/wetwire-fargate-go/internal/config"
	"github.com/lex00/wetwire-fargate-go/internal/validation"
)

// newWatchCmd creates the "watch" subcommand for rebuilding on config changes.
func newWatchCmd(global *globalOptions) *cobra.Command {
	var (
		checkOnly    bool
		debounce     time.Duration
		outputFormat string
		outputFile   string
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Rebuild the template when the config file changes",
		Long: `Watch monitors the config file and rebuilds on every change.

The watch command:
- Runs the topology checks on each change
- Rebuilds if they pass (unless --check-only)
- Debounces rapid changes to avoid excessive rebuilds

Examples:
    wetwire-fargate watch --config stack.yaml
    wetwire-fargate watch --config stack.yaml -o template.json
    wetwire-fargate watch --config stack.yaml --debounce 1s`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := global.configFile
			if path == "" {
				path = os.Getenv(config.EnvConfigFile)
			}
			if path == "" {
				return fmt.Errorf("watch needs a config file (--config or %s)", config.EnvConfigFile)
			}
			return runWatch(cmd.Context(), global, path, watchOptions{
				checkOnly:    checkOnly,
				debounce:     debounce,
				outputFormat: outputFormat,
				outputFile:   outputFile,
			})
		},
	}

	cmd.Flags().BoolVar(&checkOnly, "check-only", false, "Only run the topology checks, skip build")
	cmd.Flags().DurationVar(&debounce, "debounce", 500*time.Millisecond, "Debounce duration for rapid changes")
	cmd.Flags().StringVarP(&outputFormat, "format", "f", "json", "Output format for build: json or yaml")
	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file for build (default: summary only)")

	return cmd
}

type watchOptions struct {
	checkOnly    bool
	debounce     time.Duration
	outputFormat string
	outputFile   string
}

// runWatch watches the directory holding path, since editors often replace
// a file rather than write it in place.
func runWatch(ctx context.Context, global *globalOptions, path string, opts watchOptions) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() {
		_ = watcher.Close()
	}()

	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", abs, err)
	}
	fmt.Printf("Watching: %s\n", abs)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Println("Running initial check/build...")
	checkAndBuild(ctx, global, opts)

	var debounceTimer *time.Timer
	rebuildChan := make(chan struct{}, 1)

	fmt.Println("\nWatching for changes... (Ctrl+C to stop)")

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !isConfigEvent(event, abs) {
				continue
			}

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(opts.debounce, func() {
				select {
				case rebuildChan <- struct{}{}:
				default:
				}
			})

		case <-rebuildChan:
			fmt.Printf("\n[%s] Change detected, rebuilding...\n", time.Now().Format("15:04:05"))
			checkAndBuild(ctx, global, opts)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(os.Stderr, "Watch error: %v\n", err)

		case <-ctx.Done():
			fmt.Println("\nStopping watch...")
			return nil
		}
	}
}

// isConfigEvent reports whether event writes or recreates the config file.
func isConfigEvent(event fsnotify.Event, path string) bool {
	if filepath.Clean(event.Name) != path {
		return false
	}
	return event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0
}

// checkAndBuild loads the config, runs the topology checks and optionally
// rebuilds the template.
func checkAndBuild(ctx context.Context, global *globalOptions, opts watchOptions) {
	_, st, err := global.loadStack(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		return
	}

	if err := validation.CheckStack(st); err != nil {
		fmt.Fprintf(os.Stderr, "Check failed:\n%v\n", err)
		fmt.Println("Check failed, skipping build")
		return
	}
	fmt.Println("Check passed")

	if opts.checkOnly {
		return
	}

	result := buildStack(st)
	if !result.Success {
		for _, e := range result.Errors {
			fmt.Fprintf(os.Stderr, "Build error: %s\n", e)
		}
		return
	}

	data, err := encodeTemplate(&result.Template, opts.outputFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Output error: %v\n", err)
		return
	}

	if opts.outputFile == "" {
		fmt.Println("Build successful")
		fmt.Printf("Generated %d resources\n", len(result.Resources))
		return
	}
	if err := os.WriteFile(opts.outputFile, data, 0644); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write output: %v\n", err)
		return
	}
	fmt.Printf("Build successful, wrote %s\n", opts.outputFile)
}
