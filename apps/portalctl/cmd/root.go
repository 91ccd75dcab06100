package cmd

import (
	"context"
	"errors"
	"os"

	"github.com/spf13/cobra"
	"github.com/yfschool/portal/pkg/plog"
	"github.com/yfschool/portal/pkg/psdk"
)

type contextKey string

const configContextKey contextKey = "portalconfig"

var (
	cfgFile string
	verbose bool
	rootCmd = &cobra.Command{
		Use:   "portalctl",
		Short: "CLI for the school portal API (login, logout, profile, raw requests)",
		Long: `portalctl talks to the school portal API through the same SDK the web
client uses: every request carries the stored access token, and an expired
one is renewed once with the refresh token before the request is retried.

Use the auth subcommands to log in and out, "me" to show your profile, and
"request" to call any other portal resource.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := psdk.LoadConfig(cfgFile)
			if err != nil {
				return err
			}

			if f := cmd.Flags().Lookup("base-url"); f != nil && f.Changed {
				cfg.BaseURL = psdk.NormalizeBaseURL(f.Value.String())
			}
			// A memory store does not outlive the process, so the CLI
			// falls back to the keyring unless told otherwise.
			if f := cmd.Flags().Lookup("store"); f != nil && (f.Changed || cfg.Store == psdk.StoreMemory) {
				cfg.Store = f.Value.String()
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx := context.WithValue(cmd.Context(), configContextKey, cfg)
			cmd.SetContext(ctx)

			return nil
		},
	}
)

// GetConfig retrieves the Config from the command context
func GetConfig(cmd *cobra.Command) (*psdk.Config, error) {
	ctx := cmd.Context()
	cfg, ok := ctx.Value(configContextKey).(*psdk.Config)
	if !ok {
		return nil, errors.New("no config in context")
	}
	return cfg, nil
}

func logger() *plog.Logger {
	if verbose {
		return plog.NewVerbose()
	}
	return plog.NewQuiet()
}

// newClient builds an SDK client from the command's config. Callers close it.
func newClient(cmd *cobra.Command) *psdk.Client {
	cfg, err := GetConfig(cmd)
	if err != nil {
		exitIfSdkError(err)
	}
	client, err := psdk.New(cmd.Context(), cfg, psdk.WithLogger(logger().Logger))
	if err != nil {
		exitIfSdkError(err)
	}
	return client
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML). Searches: portal.yaml, .portal/config.yaml")
	rootCmd.PersistentFlags().String("base-url", "", "Base URL of the portal API (overrides config)")
	rootCmd.PersistentFlags().String("store", psdk.StoreKeyring, "Credential store: keyring, valkey or memory")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log SDK activity (requests, refreshes)")
}
