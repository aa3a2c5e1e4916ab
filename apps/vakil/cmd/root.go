package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "vakil",
	Short: "Vakil chat server",
	Long:  `Vakil serves a session-authenticated chat with Google Gemini, using each user's own API key.`,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
