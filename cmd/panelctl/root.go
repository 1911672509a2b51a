package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	flagServer string
	flagToken  string
)

var rootCmd = &cobra.Command{
	Use:   "panelctl",
	Short: "Inspect and watch a voice panel signaling relay",
	Long: `panelctl talks to a running relay: it lists live panels and their members,
and can join a panel as an observer to print every signaling event it receives.`,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagServer, "server", "s", "http://localhost:8080", "relay base URL")
	rootCmd.PersistentFlags().StringVarP(&flagToken, "token", "t", os.Getenv("VOICE_TOKEN"), "bearer token (env VOICE_TOKEN)")
	rootCmd.AddCommand(panelsCmd, membersCmd, watchCmd)
}

// Execute runs the root command. It is called once by main.
func Execute() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
