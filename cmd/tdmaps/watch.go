package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/standardbeagle/tdmaps/internal/debug"
	"github.com/standardbeagle/tdmaps/internal/mcp"
)

// watchCommand keeps a session open with both watchers running and prints a
// line whenever the decorated tree would be refreshed
func watchCommand(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	session, err := openSession(c, true)
	if err != nil {
		return err
	}
	defer session.Close()

	if _, err := session.PathIndex(ctx); err != nil {
		return err
	}

	refreshes := make(chan struct{}, 1)
	session.OnRefresh(func() {
		select {
		case refreshes <- struct{}{}:
		default:
		}
	})

	st := session.Store()
	fmt.Fprintf(c.App.Writer, "Watching %s (Ctrl+C to stop)\n", session.Root())
	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(c.App.Writer, "Stopped")
			return nil
		case <-refreshes:
			fmt.Fprintf(c.App.Writer, "%s refreshed: %d file, %d package, %d pattern annotations\n",
				time.Now().Format("15:04:05"),
				st.AllAnnotations().Len(), st.AllPackageAnnotations().Len(),
				st.AllFileMatch().Len()+st.AllPackageMatch().Len())
		}
	}
}

func mcpCommand(c *cli.Context) error {
	// Enable MCP mode to suppress all debug output
	debug.SetMCPMode(true)
	if c.Bool("debug-log") {
		logPath, err := debug.InitDebugLogFile()
		if err != nil {
			return err
		}
		defer debug.CloseDebugLog()
		debug.EnableDebug = "true"
		fmt.Fprintf(c.App.ErrWriter, "Debug log: %s\n", logPath)
	}

	session, err := openSession(c, true)
	if err != nil {
		return debug.Fatal("failed to open project: %v\n", err)
	}
	defer session.Close()

	mcpServer, err := mcp.NewServer(session)
	if err != nil {
		return debug.Fatal("failed to create MCP server: %v\n", err)
	}

	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	errChan := make(chan error, 1)
	go func() {
		debug.LogMCP("Starting MCP server with stdio transport...\n")
		errChan <- mcpServer.Start(ctx)
	}()

	shutdown := func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = mcpServer.Shutdown(shutdownCtx)
	}

	select {
	case err := <-errChan:
		shutdown()
		if err != nil {
			return debug.Fatal("MCP server error: %v\n", err)
		}
		return nil
	case sig := <-sigChan:
		debug.LogMCP("Received signal %v, shutting down gracefully...\n", sig)
		cancel()

		// Give the server a moment to shutdown gracefully
		shutdownTimer := time.NewTimer(2 * time.Second)
		defer shutdownTimer.Stop()

		select {
		case err := <-errChan:
			debug.LogMCP("Server shutdown completed\n")
			shutdown()
			return err
		case <-shutdownTimer.C:
			debug.LogMCP("Graceful shutdown timeout, forcing exit\n")
			// Closing stdin breaks the stdio transport loop
			os.Stdin.Close()
			shutdown()
			return nil
		}
	}
}
