package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"resourcegraph/internal/deserializer"
	"resourcegraph/internal/resource"
)

// readDocument reads a JSON document from path, or from stdin when path is
// empty or "-".
func readDocument(cmd *cobra.Command, path string) (map[string]any, error) {
	var data []byte
	var err error
	if path == "" || path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, usageError{fmt.Errorf("read document: %w", err)}
	}
	return deserializer.Decode(data)
}

func newCreateCommand() *cobra.Command {
	var flags directiveFlags
	var file string
	cmd := &cobra.Command{
		Use:   "create <collection>",
		Short: "Create a resource from a document",
		Example: `  echo '{"data":{"type":"tags","attributes":{"label":"go"}}}' | resourcectl create tags
  resourcectl create comments -f comment.json --expand post`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := flags.directive()
			if err != nil {
				return err
			}
			doc, err := readDocument(cmd, file)
			if err != nil {
				return err
			}
			return runWithService(cmd, func(ctx context.Context, svc *resource.Service) error {
				resp, err := svc.Create(ctx, args[0], doc, dir)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), resp)
			})
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&file, "file", "f", "", "Document file (default stdin)")
	return cmd
}

func newUpdateCommand() *cobra.Command {
	var flags directiveFlags
	var file string
	cmd := &cobra.Command{
		Use:   "update <collection> <id>",
		Short: "Apply a partial document to a resource",
		Long: `Apply a partial document to a resource.

Only the attributes and relationships present in the document change. The
document's data.id must match <id>.`,
		Example: `  echo '{"data":{"type":"posts","id":"7","attributes":{"title":"renamed"}}}' | resourcectl update posts 7`,
		Args:    exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := flags.directive()
			if err != nil {
				return err
			}
			doc, err := readDocument(cmd, file)
			if err != nil {
				return err
			}
			return runWithService(cmd, func(ctx context.Context, svc *resource.Service) error {
				resp, err := svc.Update(ctx, args[0], args[1], doc, dir)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), resp)
			})
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&file, "file", "f", "", "Document file (default stdin)")
	return cmd
}

func newDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <collection> <id>",
		Short: "Delete a resource",
		Args:  exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithService(cmd, func(ctx context.Context, svc *resource.Service) error {
				if err := svc.Delete(ctx, args[0], args[1]); err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), map[string]any{"meta": map[string]any{"deleted": args[1]}})
			})
		},
	}
}
