package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"droidpilot/mcp"
)

const version = "1.0.0"

func main() {
	var (
		mcpMode     = flag.Bool("mcp", false, "serve the MCP stdio transport instead of HTTP")
		listenAddr  = flag.String("listen", "", "HTTP listen address (overrides DROIDPILOT_LISTEN)")
		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Println("droidpilot", version)
		return
	}

	cfg := LoadConfig()
	if *listenAddr != "" {
		cfg.ListenAddr = *listenAddr
	}

	logCfg := PersistentLogConfig(cfg.DataDir)
	if *mcpMode {
		// stdout carries the MCP protocol, so console logging must
		// stay off it.
		logCfg.Console = false
	}
	if err := InitLogger(logCfg); err != nil {
		fmt.Fprintln(os.Stderr, "failed to initialize logger:", err)
		os.Exit(1)
	}

	app, err := NewApp(cfg)
	if err != nil {
		LogError("main").Err(err).Msg("Failed to initialize agent")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Start(ctx); err != nil {
		LogError("main").Err(err).Msg("Failed to start agent")
		app.Close()
		os.Exit(1)
	}

	if *mcpMode {
		runMCP(app)
	} else {
		runHTTP(ctx, app, cfg.ListenAddr)
	}

	app.Close()
	LogInfo("main").Msg("Agent stopped")
}

func runMCP(app *App) {
	srv := mcp.NewMCPServer(NewMCPBridge(app), version)
	if err := srv.Serve(); err != nil {
		LogError("main").Err(err).Msg("MCP server exited with error")
	}
}

func runHTTP(ctx context.Context, app *App, addr string) {
	srv := NewServer(app, addr)

	errCh := make(chan error, 1)
	go func() {
		LogInfo("main").Str("addr", addr).Msg("HTTP control plane listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		LogInfo("main").Msg("Shutdown signal received")
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			LogError("main").Err(err).Msg("HTTP server failed")
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		LogWarn("main").Err(err).Msg("HTTP shutdown did not complete cleanly")
	}
}
