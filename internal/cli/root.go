// Package cli implements the previewctl commands.
package cli

import (
	"context"
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/italolelis/lazypreview/internal/client"
)

const defaultServer = "http://127.0.0.1:5000"

type clientKey struct{}

func clientFromContext(ctx context.Context) (*client.Client, bool) {
	c, ok := ctx.Value(clientKey{}).(*client.Client)

	return c, ok
}

func mustClient(cmd *cobra.Command) (*client.Client, error) {
	c, ok := clientFromContext(cmd.Context())
	if !ok {
		return nil, errors.New("failed to get client from context")
	}

	return c, nil
}

// NewRootCommand builds previewctl with all subcommands attached.
func NewRootCommand() *cobra.Command {
	var server string

	root := &cobra.Command{
		Use:   "previewctl",
		Short: "Register files and page through them with the preview server",
		Long: `previewctl talks to a lazypreview server.

Usage examples:

1. Register a remote file and print its id:

	previewctl add-url https://example.com/logs/app.log

2. Upload a local file:

	previewctl upload ./server.log

3. Print a registered file line by line, one window at a time:

	previewctl cat <id>
`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			ctx := context.WithValue(cmd.Context(), clientKey{}, client.New(server, nil))
			cmd.SetContext(ctx)

			return nil
		},
	}

	defaultURL := defaultServer
	if env := os.Getenv("LAZYPREVIEW_SERVER"); env != "" {
		defaultURL = env
	}

	root.PersistentFlags().StringVar(&server, "server", defaultURL,
		"Base URL of the preview server. Defaults to $LAZYPREVIEW_SERVER when set.")

	root.AddCommand(
		newAddURLCommand(),
		newUploadCommand(),
		newListCommand(),
		newCatCommand(),
	)

	return root
}
