package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is stamped by the build via -ldflags "-X main.Version=...".
var Version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the alexa2anylist version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("alexa2anylist", Version)
	},
}
