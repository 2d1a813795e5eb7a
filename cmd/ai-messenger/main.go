// ai-messenger — WASM-sandboxed adapter host for AI messaging.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "ai-messenger",
	Short: "ai-messenger — WASM-sandboxed adapter host for AI messaging.",
	Long: `ai-messenger hosts provider adapters as sandboxed WASM modules and exposes
a messaging HTTP API on top of them. Adapters translate between the host's
chat types and each provider's wire format; the host owns all network and
filesystem access.`,
	RunE:          runServe, // Default to serve mode.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(serveCmd, dataCmd, cacheCmd, versionCmd)
	_ = godotenv.Load()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}
