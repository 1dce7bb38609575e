package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/specview/reactivefs/pkg/config"
	"github.com/specview/reactivefs/pkg/driver"
	"github.com/specview/reactivefs/pkg/fsevents"
	"github.com/specview/reactivefs/pkg/journal"
	"github.com/specview/reactivefs/pkg/logger"
	"github.com/specview/reactivefs/pkg/pool"
	"github.com/specview/reactivefs/pkg/reactive"
	"github.com/specview/reactivefs/pkg/watcher"
)

// watchCommand prints a directory listing and reprints it on every change.
type watchCommand struct {
	dir        string
	recursive  bool
	hidden     bool
	dirsOnly   bool
	exclude    []string
	configPath string
}

// Execute runs the watch command.
func (c *watchCommand) Execute() error {
	cfg, err := config.NewLoader(c.configPath).Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})

	var opts []watcher.Option
	if cfg.Journal.Path != "" {
		j, jErr := journal.NewBoltJournal(cfg.Journal.Path)
		if jErr != nil {
			return fmt.Errorf("failed to open journal: %w", jErr)
		}
		defer func() { _ = j.Close() }()
		opts = append(opts, watcher.WithJournal(j))
	}

	backend := fsevents.NewNotifyBackend(log)
	registry := watcher.NewRegistry(backend, watcher.Config{
		DebounceWindow: cfg.Watcher.DebounceWindow,
		HealthInterval: cfg.Watcher.HealthInterval,
		ReinitDelay:    cfg.Watcher.ReinitDelay,
		IgnoreNames:    cfg.Watcher.IgnoreNames,
	}, log, opts...)
	defer func() { _ = registry.CloseAll() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p := pool.New(registry, log)
	runner := driver.NewRunner(p, log)

	dirOpts := reactive.DirOptions{
		DirectoriesOnly: c.dirsOnly,
		IncludeHidden:   c.hidden,
		Exclude:         c.exclude,
	}
	sub, err := driver.Subscribe(ctx, runner, func(ctx context.Context) ([]string, error) {
		if _, ok := reactive.Stat(ctx, c.dir); !ok {
			return nil, nil
		}
		return reactive.ReadDir(ctx, c.dir, dirOpts), nil
	})
	if err != nil {
		return fmt.Errorf("failed to watch %s: %w", c.dir, err)
	}
	defer sub.Close()

	// The driver watches the listed directory itself; a recursive watch on
	// top of it re-runs the computation for changes anywhere below.
	if c.recursive {
		release, relErr := p.Acquire(ctx, c.dir, func([]fsevents.Event) { sub.Refresh() }, true)
		if relErr != nil {
			return fmt.Errorf("failed to watch %s recursively: %w", c.dir, relErr)
		}
		defer release()
	}

	clearScreen := term.IsTerminal(int(os.Stdout.Fd()))

	c.print(sub.State().Get(), clearScreen)
	cancel := sub.State().Subscribe(func(names []string) {
		c.print(names, clearScreen)
	})
	defer cancel()

	<-ctx.Done()
	fmt.Println("\nShutting down...")
	return nil
}

// print writes one listing snapshot to stdout.
func (c *watchCommand) print(names []string, clearScreen bool) {
	if clearScreen {
		fmt.Print("\033[2J\033[H")
	}

	fmt.Printf("%s (%d entries)\n", c.dir, len(names))
	for _, name := range names {
		fmt.Printf("  %s\n", name)
	}
	if !clearScreen {
		fmt.Println("---")
	}
}

// configCommand manages configuration.
type configCommand struct {
	configPath string
}

// Execute runs the config command.
func (c *configCommand) Execute(args []string) error {
	sub := "show"
	if len(args) > 0 {
		sub = args[0]
	}

	switch sub {
	case "show":
		return c.show()
	case "path":
		return c.path()
	default:
		return fmt.Errorf("unknown config subcommand: %s", sub)
	}
}

// show prints the effective configuration as YAML.
func (c *configCommand) show() error {
	cfg, err := config.NewLoader(c.configPath).Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	fmt.Print(string(data))
	return nil
}

// path prints where configuration is read from.
func (c *configCommand) path() error {
	if c.configPath != "" {
		fmt.Println(c.configPath)
		return nil
	}

	if _, err := os.Stat("reactivefs.yaml"); err == nil {
		fmt.Println("reactivefs.yaml")
		return nil
	}

	home, err := os.UserHomeDir()
	if err == nil {
		candidate := filepath.Join(home, ".config", "reactivefs", "config.yaml")
		if _, statErr := os.Stat(candidate); statErr == nil {
			fmt.Println(candidate)
			return nil
		}
	}

	fmt.Println("(defaults; no config file found)")
	return nil
}
