package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/yfschool/portal/pkg/psdk"
)

var (
	requestData  string
	requestQuery []string
)

var requestCmd = &cobra.Command{
	Use:   "request METHOD RESOURCE",
	Short: "Send an authenticated request to any portal resource",
	Long: `Send METHOD to RESOURCE (relative to the base URL) with the stored
credentials and print the JSON response.

Examples:
	portalctl request GET attendance/ --query date=2024-03-04
	portalctl request PUT profile/ --data '{"name": "Kim Minji"}'`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		var body any
		if requestData != "" {
			raw := json.RawMessage(requestData)
			if !json.Valid(raw) {
				exitIfSdkError(fmt.Errorf("--data is not valid JSON"))
			}
			body = raw
		}

		query, err := parseQuery(requestQuery)
		if err != nil {
			exitIfSdkError(err)
		}

		client := newClient(cmd)
		defer client.Close()

		resp, err := client.Gateway().Do(cmd.Context(), args[0], args[1], body, psdk.WithQuery(query))
		if err != nil {
			exitIfSdkError(err)
		}

		var out bytes.Buffer
		if err := json.Indent(&out, resp.Body, "", "  "); err != nil {
			os.Stdout.Write(resp.Body)
			return
		}
		fmt.Println(out.String())
	},
}

func parseQuery(pairs []string) (url.Values, error) {
	q := url.Values{}
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --query %q, want key=value", p)
		}
		q.Add(k, v)
	}
	return q, nil
}

func init() {
	requestCmd.Flags().StringVar(&requestData, "data", "", "JSON request body")
	requestCmd.Flags().StringArrayVar(&requestQuery, "query", nil, "Query parameter key=value (repeatable)")
	rootCmd.AddCommand(requestCmd)
}
