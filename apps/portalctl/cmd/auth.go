package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage authentication with the portal (login, logout, status)",
	Long: `Manage authentication against the portal API.

Tokens are kept in the configured credential store (the OS keyring by
default) and reused by every other portalctl command.

Examples:
  portalctl auth login --user-id s1001
  portalctl auth status
  portalctl auth logout`,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether you are logged in",
	Run: func(cmd *cobra.Command, args []string) {
		client := newClient(cmd)
		defer client.Close()

		snap := client.Snapshot()
		fmt.Printf("Status: %s\n", snap.Status)
		if !snap.Authenticated() {
			return
		}
		claims, err := client.Claims()
		if err != nil {
			// Opaque token: nothing more to show offline.
			return
		}
		fmt.Printf("User: %s (%s)\n", claims.UserID, claims.Role)
		if claims.Exp > 0 {
			exp := time.Unix(claims.Exp, 0)
			state := "valid"
			if time.Now().After(exp) {
				state = "expired, will refresh on next request"
			}
			fmt.Printf("Access token expires: %s (%s)\n", exp.Format(time.RFC3339), state)
		}
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Log out and forget the stored tokens",
	Run: func(cmd *cobra.Command, args []string) {
		client := newClient(cmd)
		defer client.Close()

		if err := client.Logout(cmd.Context()); err != nil {
			exitIfSdkError(err)
		}
		fmt.Println("Logged out")
	},
}

func init() {
	authCmd.AddCommand(statusCmd)
	authCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(authCmd)
}
