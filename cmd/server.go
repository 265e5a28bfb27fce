package cmd

import (
	"wavecast/server"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the wavecast HTTP server",
	Long:  `Start the wavecast HTTP server serving the REST API and uploaded files.`,
	Run: func(cmd *cobra.Command, args []string) {
		server.Start()
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
