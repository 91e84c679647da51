package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattjoyce/mcpserve/internal/config"
	"github.com/mattjoyce/mcpserve/internal/dispatch"
	"github.com/mattjoyce/mcpserve/internal/events"
	"github.com/mattjoyce/mcpserve/internal/log"
	"github.com/mattjoyce/mcpserve/internal/protocol"
	"github.com/mattjoyce/mcpserve/internal/webtools"
)

// newToolServer builds the dispatch server for cfg. hub may be nil.
func newToolServer(cfg *config.Config, hub *events.Hub) (*dispatch.Server, error) {
	var extra []dispatch.Tool
	if cfg.Tools.Web.Enabled {
		session := cfg.Session
		web := webtools.New(cfg.Tools.Web, webtools.WithAPIKey(func() string {
			if session.JinaAPIKey != "" {
				return session.JinaAPIKey
			}
			return os.Getenv("JINA_API_KEY")
		}), webtools.WithDeeplKey(func() string {
			if session.DeeplAPIKey != "" {
				return session.DeeplAPIKey
			}
			return os.Getenv("DEEPL_API_KEY")
		}))
		extra = append(extra, web.Tools()...)
	}

	catalog, err := dispatch.DefaultCatalog(extra...)
	if err != nil {
		return nil, fmt.Errorf("build tool catalog: %w", err)
	}

	opts := []dispatch.Option{
		dispatch.WithInfo(cfg.Service.Name, version),
		dispatch.WithValidation(cfg.Tools.ValidateArguments),
		dispatch.WithLogger(log.WithComponent("dispatch")),
	}
	if hub != nil {
		opts = append(opts, dispatch.WithPublisher(hub))
	}
	return dispatch.NewServer(catalog, opts...)
}

func runStdio(args []string) int {
	fs := flag.NewFlagSet("stdio", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := config.LoadOrDefaults(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	log.Setup(cfg.Service.LogLevel)

	srv, err := newToolServer(cfg, nil)
	if err != nil {
		log.WithComponent("main").Error("failed to build tool server", "error", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Serve(ctx, os.Stdin, os.Stdout); err != nil && ctx.Err() == nil {
		log.WithComponent("main").Error("stdio server failed", "error", err)
		return 1
	}
	return 0
}

func runTools(args []string) int {
	fs := flag.NewFlagSet("tools", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := config.LoadOrDefaults(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	srv, err := newToolServer(cfg, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build tool catalog: %v\n", err)
		return 1
	}

	data, err := json.MarshalIndent(protocol.ListToolsResult{Tools: srv.ListTools()}, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render tools: %v\n", err)
		return 1
	}
	fmt.Println(string(data))
	return 0
}
