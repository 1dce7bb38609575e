// Package main provides the reactivefs CLI application.
//
// reactivefs watches project directories and re-runs filesystem-reading
// computations when anything they touched changes. The CLI exposes a live
// directory listing for trying the watch pipeline end to end, plus
// configuration inspection.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
)

// version is set during build time.
var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run executes the main application logic.
func run() error {
	configPath := flag.String("config", "", "path to configuration file")
	showVersion := flag.Bool("version", false, "show version information")

	flag.Parse()

	if *showVersion {
		fmt.Printf("reactivefs %s\n", version)
		return nil
	}

	args := flag.Args()
	if len(args) == 0 {
		return showUsage()
	}

	command := args[0]

	switch command {
	case "watch":
		return runWatchCommand(*configPath, args[1:])
	case "config":
		return runConfigCommand(*configPath, args[1:])
	case "help":
		return showUsage()
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// runWatchCommand runs the watch command.
func runWatchCommand(configPath string, args []string) error {
	cmd, err := parseWatchFlags(configPath, args)
	if err != nil {
		return err
	}
	return cmd.Execute()
}

// parseWatchFlags parses watch command flags into a watchCommand.
func parseWatchFlags(configPath string, args []string) (*watchCommand, error) {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	recursive := fs.Bool("recursive", false, "watch the entire subtree instead of direct children")
	hidden := fs.Bool("hidden", false, "include dotfiles in the listing")
	dirsOnly := fs.Bool("dirs", false, "list directories only")
	exclude := fs.String("exclude", "", "names to exclude from the listing (comma-separated)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if fs.NArg() != 1 {
		return nil, fmt.Errorf("watch requires exactly one directory argument")
	}

	var excluded []string
	if *exclude != "" {
		excluded = strings.Split(*exclude, ",")
		for i, name := range excluded {
			excluded[i] = strings.TrimSpace(name)
		}
	}

	return &watchCommand{
		dir:        fs.Arg(0),
		recursive:  *recursive,
		hidden:     *hidden,
		dirsOnly:   *dirsOnly,
		exclude:    excluded,
		configPath: configPath,
	}, nil
}

// runConfigCommand runs the config command.
func runConfigCommand(configPath string, args []string) error {
	cmd := &configCommand{
		configPath: configPath,
	}
	return cmd.Execute(args)
}

// showUsage displays usage information.
func showUsage() error {
	usage := `reactivefs - reactive filesystem watching

Usage:
  reactivefs [flags] <command> [command flags]

Commands:
  watch       Watch a directory and print its listing on every change
  config      Configuration management (show, path)
  help        Show this help message

Global Flags:
  -config     Path to configuration file
  -version    Show version information

Watch Command Flags:
  -recursive  Watch the entire subtree instead of direct children
  -hidden     Include dotfiles in the listing
  -dirs       List directories only
  -exclude    Names to exclude from the listing (comma-separated)

Examples:
  # Watch a project directory
  reactivefs watch ./specs

  # Watch recursively, directories only
  reactivefs watch -recursive -dirs .

  # Show the effective configuration
  reactivefs config show

  # Show where the configuration was loaded from
  reactivefs config path

Version: %s
`

	fmt.Printf(usage, version)
	return nil
}
