package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/taarya/taarya/internal/client"
)

var (
	askServer  string
	askJSON    bool
	askTimeout time.Duration
)

var askCmd = &cobra.Command{
	Use:   "ask [query]",
	Short: "Ask a question against a running taarya server",
	Long: `Sends a natural-language query to the agent endpoint of a running
server and renders the answer. When the server cannot be reached, the
query is parsed locally for coordinates or a source identifier and
dispatched directly to the catalog endpoints.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAsk(strings.Join(args, " "))
	},
}

func init() {
	askCmd.Flags().StringVar(&askServer, "server", "http://127.0.0.1:8000", "base URL of the taarya server")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "print the raw response as JSON")
	askCmd.Flags().DurationVar(&askTimeout, "timeout", 2*time.Minute, "request timeout")
	rootCmd.AddCommand(askCmd)
}

func runAsk(query string) error {
	ctx, cancel := context.WithTimeout(context.Background(), askTimeout)
	defer cancel()

	c, err := client.New(askServer)
	if err != nil {
		return fmt.Errorf("creating client: %w", err)
	}

	answer, err := c.Ask(ctx, query, nil)
	if err != nil {
		return fmt.Errorf("asking: %w", err)
	}

	if askJSON {
		data, err := client.ExportJSON(answer)
		if err != nil {
			return fmt.Errorf("encoding answer: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	rendered, err := client.NewRenderer().Render(answer)
	if err != nil {
		return fmt.Errorf("rendering answer: %w", err)
	}
	if _, err := fmt.Fprint(os.Stdout, rendered); err != nil {
		return fmt.Errorf("writing answer: %w", err)
	}
	return nil
}
