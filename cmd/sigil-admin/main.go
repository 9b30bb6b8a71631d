// ABOUTME: Admin CLI for sigil-gateway token and tool management
// ABOUTME: Talks to the gateway HTTP API with bearer authentication

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/2389/sigil/internal/client"
)

const banner = `
     _       _ _              _           _
 ___(_) __ _(_) |       __ _| |_ __ ___ (_)_ __
/ __| |/ _' | | |_____ / _' | | '_ ' _ \| | '_ \
\__ \ | (_| | | |_____| (_| | | | | | | | | | | |
|___/_|\__, |_|_|      \__,_|_|_| |_| |_|_|_| |_|
       |___/
`

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	host := client.ResolveHost("")
	token := client.ResolveToken("")

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "me":
		err = cmdMe(host, token)
	case "status":
		err = cmdStatus(host, token)
	case "tokens":
		err = cmdTokens(host, token, args)
	case "service-token":
		err = cmdServiceToken(host, token, args)
	case "tools":
		err = cmdTools(host, token, args)
	case "owners":
		err = cmdOwners(host, token, args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
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
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	fmt.Println()
	fmt.Println("Usage: sigil-admin <command> [args]")
	fmt.Println()
	yellow.Println("Commands:")
	fmt.Println("  me                        Show your identity")
	fmt.Println("  status                    Show gateway status and your identity")
	fmt.Println("  tokens                    List your access tokens")
	fmt.Println("  tokens list               List your access tokens")
	fmt.Println("  tokens create             Create a new access token")
	fmt.Println("  tokens revoke <id>        Revoke an access token by ID")
	fmt.Println("  service-token get         Print your bridge service token")
	fmt.Println("  service-token revoke      Revoke your service tokens")
	fmt.Println("  tools                     List available bridge tools")
	fmt.Println("  tools list                List available bridge tools")
	fmt.Println("  tools call <name> [json]  Invoke a bridge tool")
	fmt.Println("  owners create             Register a new owner")
	fmt.Println()
	yellow.Println("Environment:")
	fmt.Println("  SIGIL_HOST    Gateway base URL (default: http://localhost:8080)")
	fmt.Println("  SIGIL_TOKEN   Access token (falls back to ~/.config/sigil/token)")
	fmt.Println()
	yellow.Println("Examples:")
	fmt.Println("  export SIGIL_TOKEN=\"sigil_...\"")
	fmt.Println("  sigil-admin me")
	fmt.Println("  sigil-admin tokens create --name ci --ttl 90")
	fmt.Println("  sigil-admin tools call echo '{\"text\":\"hello\"}'")
	fmt.Println()
}

// requireToken rejects commands that need authentication before making a
// doomed request.
func requireToken(token string) error {
	if token == "" {
		return fmt.Errorf("no token found: set SIGIL_TOKEN or run sigil-gateway bootstrap")
	}
	return nil
}

// cmdMe shows the current caller's identity
func cmdMe(host, token string) error {
	if err := requireToken(token); err != nil {
		return err
	}

	c := client.New(host, token)
	id, err := c.Me(context.Background())
	if err != nil {
		return fmt.Errorf("me: %w", err)
	}

	cyan := color.New(color.FgCyan)

	fmt.Println()
	cyan.Println("  Identity")
	cyan.Println("  --------")
	fmt.Printf("  Owner ID:     %s\n", id.OwnerID)
	if id.DisplayName != "" {
		fmt.Printf("  Display Name: %s\n", id.DisplayName)
	}
	fmt.Printf("  Token ID:     %s\n", id.TokenID)
	fmt.Println()

	return nil
}

// cmdStatus shows gateway reachability and identity
func cmdStatus(host, token string) error {
	cyan := color.New(color.FgCyan)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	fmt.Println()

	c := client.New(host, token)

	// Try to reach the gateway
	if err := c.Health(context.Background()); err != nil {
		yellow.Printf("  Gateway:  ")
		color.Red("UNREACHABLE (%v)\n", err)
		return nil
	}

	green.Printf("  Gateway:  ")
	fmt.Printf("healthy at %s\n", host)

	// If we have a token, show identity
	if token != "" {
		id, err := c.Me(context.Background())
		if err != nil {
			yellow.Printf("  Identity: ")
			color.Red("auth failed (%v)\n", err)
		} else {
			green.Printf("  Identity: ")
			if id.DisplayName != "" {
				fmt.Printf("%s (%s)\n", id.DisplayName, id.OwnerID)
			} else {
				fmt.Printf("%s\n", id.OwnerID)
			}
		}
	} else {
		yellow.Printf("  Identity: ")
		fmt.Println("(no token - set SIGIL_TOKEN)")
	}

	fmt.Println()
	return nil
}

// cmdTokens handles tokens subcommands
func cmdTokens(host, token string, args []string) error {
	if err := requireToken(token); err != nil {
		return err
	}

	// Default to list
	subcmd := "list"
	if len(args) > 0 {
		subcmd = args[0]
		args = args[1:]
	}

	switch subcmd {
	case "list", "ls":
		return cmdTokensList(host, token)
	case "create", "add":
		return cmdTokensCreate(host, token, args)
	case "revoke", "rm", "delete":
		return cmdTokensRevoke(host, token, args)
	default:
		return fmt.Errorf("unknown tokens subcommand: %s (use list, create, revoke)", subcmd)
	}
}

// cmdTokensList lists the caller's access tokens
func cmdTokensList(host, token string) error {
	c := client.New(host, token)
	tokens, err := c.ListTokens(context.Background())
	if err != nil {
		return fmt.Errorf("listing tokens: %w", err)
	}

	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Println("  Access Tokens")
	cyan.Println("  -------------")

	if len(tokens) == 0 {
		fmt.Println("  (no tokens)")
		fmt.Println()
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  ID\tNAME\tPREFIX\tCREATED\tEXPIRES\tLAST USED")
	fmt.Fprintln(w, "  --\t----\t------\t-------\t-------\t---------")

	for _, t := range tokens {
		name := truncate(t.Name, 24)
		expires := "never"
		if t.ExpiresAt != "" {
			expires = formatTime(t.ExpiresAt)
		}
		lastUsed := "-"
		if t.LastUsedAt != "" {
			lastUsed = formatTime(t.LastUsedAt)
		}
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%s\t%s\n",
			t.ID, name, t.Prefix, formatTime(t.CreatedAt), expires, lastUsed)
	}
	w.Flush()
	fmt.Println()

	return nil
}

// cmdTokensCreate creates a new access token
func cmdTokensCreate(host, token string, args []string) error {
	// Parse args
	var name string
	var ttlDays *int

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--name", "-n":
			if i+1 < len(args) {
				name = args[i+1]
				i++
			}
		case "--ttl", "-t":
			if i+1 < len(args) {
				days, err := parseIntArg(args[i+1])
				if err != nil {
					return fmt.Errorf("invalid ttl: %w", err)
				}
				d := int(days)
				ttlDays = &d
				i++
			}
		}
	}

	if name == "" {
		return fmt.Errorf("usage: tokens create --name <name> [--ttl <days>]")
	}

	c := client.New(host, token)
	created, err := c.CreateToken(context.Background(), name, ttlDays)
	if err != nil {
		return fmt.Errorf("creating token: %w", err)
	}

	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan)

	fmt.Println()
	green.Println("  Token created successfully")
	fmt.Println()
	cyan.Println("  Name:     " + created.Token.Name)
	cyan.Println("  ID:       " + created.Token.ID)
	cyan.Println("  Prefix:   " + created.Token.Prefix)
	if created.Token.ExpiresAt != "" {
		cyan.Println("  Expires:  " + created.Token.ExpiresAt)
	} else {
		cyan.Println("  Expires:  never")
	}
	fmt.Println()
	fmt.Println("  Secret (keep this - it will not be shown again):")
	fmt.Println()
	fmt.Println("  " + created.Secret)
	fmt.Println()

	return nil
}

// cmdTokensRevoke revokes an access token by ID
func cmdTokensRevoke(host, token string, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: tokens revoke <token-id>")
	}

	tokenID := args[0]

	c := client.New(host, token)
	revoked, err := c.RevokeToken(context.Background(), tokenID)
	if err != nil {
		return fmt.Errorf("revoking token: %w", err)
	}

	if !revoked {
		return fmt.Errorf("no token found with ID %s", tokenID)
	}

	green := color.New(color.FgGreen)
	green.Printf("✓ Revoked token: %s\n", tokenID)

	return nil
}

// cmdServiceToken handles service-token subcommands
func cmdServiceToken(host, token string, args []string) error {
	if err := requireToken(token); err != nil {
		return err
	}

	// Default to get
	subcmd := "get"
	if len(args) > 0 {
		subcmd = args[0]
	}

	c := client.New(host, token)

	switch subcmd {
	case "get":
		secret, err := c.ServiceToken(context.Background())
		if err != nil {
			return fmt.Errorf("fetching service token: %w", err)
		}
		// Raw secret only, so the output can be piped into other tools
		fmt.Println(secret)
		return nil
	case "revoke", "rm":
		count, err := c.RevokeServiceTokens(context.Background())
		if err != nil {
			return fmt.Errorf("revoking service tokens: %w", err)
		}
		green := color.New(color.FgGreen)
		green.Printf("✓ Revoked %d service token(s)\n", count)
		return nil
	default:
		return fmt.Errorf("unknown service-token subcommand: %s (use get, revoke)", subcmd)
	}
}

// cmdTools handles tools subcommands
func cmdTools(host, token string, args []string) error {
	if err := requireToken(token); err != nil {
		return err
	}

	// Default to list
	subcmd := "list"
	if len(args) > 0 {
		subcmd = args[0]
		args = args[1:]
	}

	switch subcmd {
	case "list", "ls":
		refresh := len(args) > 0 && (args[0] == "--refresh" || args[0] == "-r")
		return cmdToolsList(host, token, refresh)
	case "call", "invoke":
		return cmdToolsCall(host, token, args)
	default:
		return fmt.Errorf("unknown tools subcommand: %s (use list, call)", subcmd)
	}
}

// cmdToolsList lists the bridge tool catalog
func cmdToolsList(host, token string, refresh bool) error {
	c := client.New(host, token)
	tools, err := c.ListTools(context.Background(), refresh)
	if err != nil {
		return fmt.Errorf("listing tools: %w", err)
	}

	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Println("  Bridge Tools")
	cyan.Println("  ------------")

	if len(tools) == 0 {
		fmt.Println("  (no tools available)")
		fmt.Println()
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  NAME\tDESCRIPTION")
	fmt.Fprintln(w, "  ----\t-----------")

	for _, t := range tools {
		fmt.Fprintf(w, "  %s\t%s\n", t.Name, truncate(t.Description, 60))
	}
	w.Flush()
	fmt.Println()

	return nil
}

// cmdToolsCall invokes a bridge tool with optional JSON arguments
func cmdToolsCall(host, token string, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: tools call <name> ['{\"key\":\"value\"}']")
	}

	name := args[0]

	var toolArgs map[string]any
	if len(args) >= 2 {
		if err := json.Unmarshal([]byte(args[1]), &toolArgs); err != nil {
			return fmt.Errorf("invalid JSON arguments: %w", err)
		}
	}

	c := client.New(host, token)
	output, err := c.CallTool(context.Background(), name, toolArgs)
	if err != nil {
		return fmt.Errorf("calling %s: %w", name, err)
	}

	fmt.Println(output)
	return nil
}

// cmdOwners handles owners subcommands
func cmdOwners(host, token string, args []string) error {
	if err := requireToken(token); err != nil {
		return err
	}

	// Default to showing usage
	subcmd := ""
	if len(args) > 0 {
		subcmd = args[0]
		args = args[1:]
	}

	switch subcmd {
	case "create", "add":
		return cmdOwnersCreate(host, token, args)
	default:
		return fmt.Errorf("usage: owners create --name <display-name> [--id <id>]")
	}
}

// cmdOwnersCreate registers a new owner with a bootstrap token
func cmdOwnersCreate(host, token string, args []string) error {
	// Parse args
	var name, id string

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--name", "-n":
			if i+1 < len(args) {
				name = args[i+1]
				i++
			}
		case "--id":
			if i+1 < len(args) {
				id = args[i+1]
				i++
			}
		}
	}

	if name == "" {
		return fmt.Errorf("usage: owners create --name <display-name> [--id <id>]")
	}

	c := client.New(host, token)
	created, err := c.CreateOwner(context.Background(), id, name)
	if err != nil {
		return fmt.Errorf("creating owner: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Printf("✓ Created owner: %s\n", created.Owner.ID)
	fmt.Printf("  Name:   %s\n", created.Owner.DisplayName)
	fmt.Println()
	fmt.Println("  Bootstrap token (keep this - it will not be shown again):")
	fmt.Println()
	fmt.Println("  " + created.Secret)
	fmt.Println()

	return nil
}

// parseIntArg parses a string to int64
func parseIntArg(s string) (int64, error) {
	var v int64
	_, err := fmt.Sscanf(s, "%d", &v)
	return v, err
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

// formatTime compacts an RFC3339 timestamp for table display.
func formatTime(s string) string {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.Format("Jan 02 15:04")
	}
	return s
}
