// Command gdx-viewer-server is the Process Supervisor entry point
// (spec §6.1): it reads startup options from argv, opens the embedded
// engine, binds a loopback WebSocket listener, signals readiness to
// its parent process, and shuts down cleanly on SIGTERM/SIGINT.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/chrispahm/gdx-viewer/internal/logging"
	"github.com/chrispahm/gdx-viewer/internal/supervisor"
)

var rootCmd = &cobra.Command{
	Use:   "gdx-viewer-server [legacyExtensionPath] <optionsJSON>",
	Short: "GDX Viewer Query Server",
	Long: `GDX Viewer Query Server - an embedded analytics engine exposed over a
loopback WebSocket RPC for viewing and querying GAMS Data eXchange files.

The first positional argument is kept for compatibility with the
original VSCode-extension launch shape and is ignored; the options
JSON is whichever positional argument comes last.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runServer,
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv, -vvv)")

	// pterm's default printers write to stdout; this process reserves
	// stdout for the single readiness JSON line, so every startup/
	// shutdown printer is redirected to stderr.
	pterm.Info.Writer = os.Stderr
	pterm.Success.Writer = os.Stderr
	pterm.Warning.Writer = os.Stderr
	pterm.Error.Writer = os.Stderr
}

func runServer(cmd *cobra.Command, args []string) error {
	verbosity, _ := cmd.Flags().GetCount("verbose")
	if err := logging.Initialize(verbosity, true); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	optionsJSON := supervisor.OptionsJSONFromArgs(args)

	pterm.Info.Println("starting GDX Viewer Query Server")

	sup, err := supervisor.Start(optionsJSON)
	if err != nil {
		pterm.Error.Printfln("failed to start: %v", err)
		return err
	}

	if err := sup.WriteReady(os.Stdout); err != nil {
		return fmt.Errorf("failed to write readiness line: %w", err)
	}
	pterm.Success.Printfln("listening on 127.0.0.1:%d", sup.Port())

	if err := sup.Wait(context.Background()); err != nil {
		pterm.Error.Printfln("shutdown error: %v", err)
		return err
	}
	pterm.Success.Println("server stopped cleanly")
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
