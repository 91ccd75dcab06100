package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	loginUserID   string
	loginPassword string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in to the portal",
	Long: `Log in with your student or staff number.

Examples:
	# prompt for the password
	portalctl auth login --user-id s1001

	# non-interactive
	portalctl auth login --user-id s1001 --password "$PORTAL_PASSWORD"

The token pair is saved in the credential store for subsequent commands.`,
	Run: func(cmd *cobra.Command, args []string) {
		password := loginPassword
		if password == "" {
			var err error
			password, err = promptPassword()
			if err != nil {
				exitIfSdkError(err)
			}
		}

		client := newClient(cmd)
		defer client.Close()

		snap, err := client.Login(cmd.Context(), loginUserID, password)
		if err != nil {
			exitIfSdkError(err)
		}

		if snap.Profile != nil {
			fmt.Printf("Logged in as: %s (%s)\n", snap.Profile.Name, snap.Profile.UserID)
		} else {
			fmt.Printf("Logged in as: %s\n", loginUserID)
		}
	},
}

func promptPassword() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("no password given and stdin is not a terminal; use --password")
	}
	fmt.Fprint(os.Stderr, "Password: ")
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

func init() {
	loginCmd.Flags().StringVar(&loginUserID, "user-id", "", "Student or staff number")
	loginCmd.Flags().StringVar(&loginPassword, "password", "", "Password (prompted when omitted)")
	_ = loginCmd.MarkFlagRequired("user-id")
	authCmd.AddCommand(loginCmd)
}
