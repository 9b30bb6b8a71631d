// ABOUTME: Standalone console for the MCP tool bridge
// ABOUTME: Lists and invokes remote tools directly, without a running gateway

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/2389/sigil/internal/bridge"
)

const banner = `
    ╭───────────────────────────────────╮
    │                                   │
    │   ┏━╸╻┏━╸╻╻     ┏┓ ┏━┓╻╺┳┓┏━╸┏━╸  │
    │   ┗━┓┃┃╺┓┃┃     ┣┻┓┣┳┛┃ ┃┃┃╺┓┣╸   │
    │   ╺━┛╹┗━┛╹┗━╸   ┗━┛╹┗╸╹╺┻┛┗━┛┗━╸  │
    │                                   │
    │         sigil tool bridge         │
    │                                   │
    ╰───────────────────────────────────╯
`

// getConfigPath returns the path to the bridge console config file.
// Priority: SIGIL_BRIDGE_CONFIG env var > XDG_CONFIG_HOME/sigil/bridge.toml > ~/.config/sigil/bridge.toml
func getConfigPath() string {
	if envPath := os.Getenv("SIGIL_BRIDGE_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "bridge.toml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "sigil", "bridge.toml")
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "tools", "ls":
		err = cmdTools()
	case "call", "invoke":
		err = cmdCall(os.Args[2:])
	case "help", "--help", "-h":
		printUsage()
	default:
		color.Red("Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	fmt.Println("Usage: sigil-bridge <command> [arguments]")
	fmt.Println()

	yellow := color.New(color.FgYellow)
	yellow.Println("Commands:")
	fmt.Println("  tools                    List tools on the configured server")
	fmt.Println("  call <tool> [json]       Invoke a tool and print its text output")
	fmt.Println("  help                     Show this help")
	fmt.Println()

	yellow.Println("Config (" + getConfigPath() + "):")
	fmt.Println(`  [server]
  endpoint = "https://tools.example.com/mcp"
  credential = "${TOOL_SERVER_TOKEN}"

  [timeouts]
  call = "60s"`)
	fmt.Println()

	yellow.Println("Environment:")
	fmt.Println("  SIGIL_BRIDGE_CONFIG      Config file path (default: ~/.config/sigil/bridge.toml)")
	fmt.Println()

	yellow.Println("Examples:")
	fmt.Println("  sigil-bridge tools")
	fmt.Println(`  sigil-bridge call search '{"query": "tailnet"}'`)
}

// console bundles everything one command invocation needs.
type console struct {
	cfg        *Config
	configPath string
	client     *bridge.Client
}

func newConsole() (*console, error) {
	configPath := getConfigPath()
	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config from %s: %w", configPath, err)
	}

	// Logs go to stderr so tool output on stdout stays pipeable.
	logger := setupLogger(cfg.Logging.Level)

	client := bridge.New(bridge.Config{
		Dialer:            &bridge.StreamableDialer{Endpoint: cfg.Server.Endpoint},
		DefaultCredential: cfg.Server.Credential,
		Logger:            logger,
		ConnectTimeout:    cfg.Timeouts.Connect,
		ListTimeout:       cfg.Timeouts.List,
		CallTimeout:       cfg.Timeouts.Call,
	})

	return &console{cfg: cfg, configPath: configPath, client: client}, nil
}

func cmdTools() error {
	c, err := newConsole()
	if err != nil {
		return err
	}
	if c.cfg.Server.Credential == "" {
		return fmt.Errorf("no credential configured: set server.credential in %s", c.configPath)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	tools := c.client.GetTools(ctx, "")
	if len(tools) == 0 {
		fmt.Println("(no tools available)")
		return nil
	}

	names := make([]string, 0, len(tools))
	for name := range tools {
		names = append(names, name)
	}
	sort.Strings(names)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tDESCRIPTION")
	fmt.Fprintln(w, "----\t-----------")
	for _, name := range names {
		fmt.Fprintf(w, "%s\t%s\n", name, truncate(tools[name].Description, 60))
	}
	return w.Flush()
}

func cmdCall(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: sigil-bridge call <tool> [json-arguments]")
	}
	name := args[0]

	arguments := map[string]any{}
	if len(args) > 1 {
		if err := json.Unmarshal([]byte(args[1]), &arguments); err != nil {
			return fmt.Errorf("parsing arguments: %w", err)
		}
	}

	c, err := newConsole()
	if err != nil {
		return err
	}
	if c.cfg.Server.Credential == "" {
		return fmt.Errorf("no credential configured: set server.credential in %s", c.configPath)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	tools := c.client.GetTools(ctx, "")
	tool, ok := tools[name]
	if !ok {
		return fmt.Errorf("no tool named %q (run 'sigil-bridge tools' to see what is available)", name)
	}

	output, err := tool.Call(ctx, arguments)
	if err != nil {
		return err
	}

	fmt.Println(output)
	return nil
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelWarn
	}

	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
