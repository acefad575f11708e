package main

import (
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "roamctl",
	Short: "Exercise a running presence server with simulated peers",
	Long: `roamctl connects simulated peers to a presence server over websocket.
Each peer registers an identity, wanders the shared space, and occasionally
pairs up with another peer, printing every event it receives. Useful for
manual soak testing of the room coordinator.`,
}

func main() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	go func() {
		<-sig
		os.Exit(0)
	}()

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
