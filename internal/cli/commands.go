package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/italolelis/lazypreview/internal/client"
	"github.com/italolelis/lazypreview/internal/preview"
)

func newAddURLCommand() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "add-url <url>",
		Short: "Register a remote URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := mustClient(cmd)
			if err != nil {
				return err
			}

			id, err := c.CreateFromURL(cmd.Context(), args[0], name)
			if err != nil {
				return fmt.Errorf("failed to register url: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), id)

			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Display name. Defaults to the last path segment of the URL.")

	return cmd
}

func newUploadCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "upload <path>",
		Short: "Upload a local file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := mustClient(cmd)
			if err != nil {
				return err
			}

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open file: %w", err)
			}
			defer f.Close()

			id, err := c.Upload(cmd.Context(), filepath.Base(args[0]), f)
			if err != nil {
				return fmt.Errorf("failed to upload file: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), id)

			return nil
		},
	}
}

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List recently registered files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := mustClient(cmd)
			if err != nil {
				return err
			}

			records, err := c.List(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list files: %w", err)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tSTORAGE\tSIZE\tCREATED")

			for _, r := range records {
				size := r.Size
				if size == "" {
					size = "-"
				}

				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.Name, r.Storage, size, r.CreatedAt)
			}

			return tw.Flush()
		},
	}
}

func newCatCommand() *cobra.Command {
	var (
		chunkBytes int64
		overlap    int64
		maxWindow  int64
	)

	cmd := &cobra.Command{
		Use:   "cat <id>",
		Short: "Print a registered file, fetching it window by window",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := mustClient(cmd)
			if err != nil {
				return err
			}

			view, err := c.View(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to describe %s: %w", args[0], err)
			}

			out := cmd.OutOrStdout()
			r := preview.NewReader(c.Source(view.ID), readerOptions(view, chunkBytes, overlap, maxWindow))

			for {
				segment, err := r.Next(cmd.Context())
				if errors.Is(err, io.EOF) {
					return nil
				}

				if err != nil {
					return fmt.Errorf("failed to read %s: %w", args[0], err)
				}

				if _, err := io.WriteString(out, segment); err != nil {
					return err
				}
			}
		},
	}

	flags := cmd.Flags()
	flags.Int64Var(&chunkBytes, "chunk-bytes", 0, "Bytes requested per window. Defaults to the server's chunk size.")
	flags.Int64Var(&overlap, "overlap", preview.DefaultOverlap, "Bytes re-fetched from the previous window.")
	flags.Int64Var(&maxWindow, "max-window", 0, "Largest window used for long lines. Defaults to 16 windows, capped by the server.")

	return cmd
}

// readerOptions fits the reader to the limits advertised by the server. Every
// request asks for at most a window plus the overlap, so both must fit in the
// server's maximum.
func readerOptions(view *client.View, chunk, overlap, maxWindow int64) preview.Options {
	if chunk <= 0 {
		chunk = view.ChunkBytes
	}

	if chunk <= 0 {
		chunk = preview.DefaultChunkSize
	}

	overlap = max(overlap, 0)

	if maxWindow <= 0 {
		maxWindow = chunk * preview.DefaultMaxWindowFactor
	}

	if limit := view.MaxWindowBytes; limit > 0 {
		if overlap >= limit {
			overlap = 0
		}

		budget := limit - overlap
		chunk = min(chunk, budget)
		maxWindow = min(max(maxWindow, chunk), budget)
	}

	opts := preview.Options{ChunkSize: chunk, Overlap: overlap, MaxWindow: maxWindow}
	if overlap == 0 {
		// Options treats zero as "use the default".
		opts.Overlap = -1
	}

	return opts
}
