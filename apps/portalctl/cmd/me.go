package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var meCmd = &cobra.Command{
	Use:   "me",
	Short: "Show information about the current authenticated user",
	Run: func(cmd *cobra.Command, args []string) {
		client := newClient(cmd)
		defer client.Close()

		p, err := client.FetchProfile(cmd.Context())
		if err != nil {
			exitIfSdkError(err)
		}

		fmt.Printf("Logged in: %s (%s)\n", p.Name, p.UserID)
		fmt.Printf("Role: %s\n", p.Role)
		if p.ClassName != "" {
			fmt.Printf("Class: %s\n", p.ClassName)
		}
	},
}

func init() {
	rootCmd.AddCommand(meCmd)
}
