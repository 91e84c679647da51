package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/mattjoyce/mcpserve/internal/config"
	"gopkg.in/yaml.v3"
)

func runConfigNoun(args []string) int {
	if len(args) == 0 || isHelpToken(args[0]) {
		printConfigNounHelp()
		if len(args) == 0 {
			return 1
		}
		return 0
	}

	switch args[0] {
	case "check":
		return runConfigCheck(args[1:])
	case "show":
		return runConfigShow(args[1:])
	case "get":
		return runConfigGet(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n\n", args[0])
		printConfigNounHelp()
		return 1
	}
}

func printConfigNounHelp() {
	fmt.Fprint(os.Stderr, `Usage: mcpserve config <action> [--config PATH]

Actions:
  check   Validate the configuration and print a summary
  show    Print the effective configuration as YAML (secrets masked)
  get     Print one value by dot path, e.g. worker.grace_period
`)
}

func runConfigCheck(args []string) int {
	fs := flag.NewFlagSet("config check", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := config.LoadOrDefaults(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration invalid: %v\n", err)
		return 1
	}

	source := cfg.SourcePath
	if source == "" {
		source = "(built-in defaults)"
	}
	fmt.Printf("Configuration valid: %s\n", source)
	if cfg.SourcePath != "" {
		if digest, err := config.FileDigest(cfg.SourcePath); err == nil {
			fmt.Printf("  blake3: %s\n", digest)
		}
	}
	fmt.Printf("  worker: mode=%s grace_period=%s stop_timeout=%s\n",
		cfg.Worker.Mode, cfg.Worker.GracePeriod, cfg.Worker.StopTimeout)
	if cfg.Worker.Command != "" {
		fmt.Printf("  worker command: %s %v\n", cfg.Worker.Command, cfg.Worker.Args)
	}
	fmt.Printf("  ledger: %s\n", cfg.State.Path)
	if cfg.API.Enabled {
		fmt.Printf("  api: %s\n", cfg.API.Listen)
	} else {
		fmt.Println("  api: disabled")
	}
	fmt.Printf("  web tools: %t\n", cfg.Tools.Web.Enabled)
	return 0
}

func runConfigShow(args []string) int {
	fs := flag.NewFlagSet("config show", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	reveal := fs.Bool("reveal", false, "Print secrets instead of masking them")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := config.LoadOrDefaults(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration invalid: %v\n", err)
		return 1
	}
	if !*reveal {
		maskSecrets(&cfg.Session)
	}

	out, err := yaml.Marshal(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render config: %v\n", err)
		return 1
	}
	fmt.Print(string(out))
	return 0
}

func maskSecrets(sc *config.SessionConfig) {
	for _, field := range []*string{&sc.JinaAPIKey, &sc.GeminiAPIKey, &sc.DeeplAPIKey, &sc.RedisURL} {
		if *field != "" {
			*field = "********"
		}
	}
}

func runConfigGet(args []string) int {
	fs := flag.NewFlagSet("config get", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: mcpserve config get <path> [--config PATH]")
		return 1
	}

	cfg, err := config.LoadOrDefaults(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration invalid: %v\n", err)
		return 1
	}
	maskSecrets(&cfg.Session)

	v, err := cfg.GetPath(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	if m, ok := v.(map[string]any); ok {
		out, err := yaml.Marshal(m)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render value: %v\n", err)
			return 1
		}
		fmt.Print(string(out))
		return 0
	}
	fmt.Println(v)
	return 0
}
