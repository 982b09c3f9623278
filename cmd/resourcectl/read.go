package main

import (
	"context"

	"github.com/spf13/cobra"

	"resourcegraph/internal/resource"
)

func newListCommand() *cobra.Command {
	var flags queryFlags
	cmd := &cobra.Command{
		Use:   "list <collection>",
		Short: "List one page of a collection",
		Example: `  resourcectl list posts --filter '[{"name":"author.name","op":"eq","val":"alice"}]' --page-size 10
  resourcectl list posts --group author_id --sort author_id`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := flags.query(cmd)
			if err != nil {
				return err
			}
			return runWithService(cmd, func(ctx context.Context, svc *resource.Service) error {
				resp, err := svc.List(ctx, args[0], q)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), resp)
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func newGetCommand() *cobra.Command {
	var flags directiveFlags
	cmd := &cobra.Command{
		Use:     "get <collection> <id>",
		Short:   "Show one resource",
		Example: `  resourcectl get posts 7 --expand author,tags --fields title`,
		Args:    exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := flags.directive()
			if err != nil {
				return err
			}
			return runWithService(cmd, func(ctx context.Context, svc *resource.Service) error {
				resp, err := svc.Get(ctx, args[0], args[1], dir)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), resp)
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func newRelatedCommand() *cobra.Command {
	var flags queryFlags
	cmd := &cobra.Command{
		Use:   "related <collection> <id> <relation>",
		Short: "List the members of one relation of a resource",
		Long: `List the members of one relation of a resource.

To-many relations are paginated and accept --filter, --sort and --group
against the related model. To-one relations print a single document, or
null when nothing is linked.`,
		Example: `  resourcectl related users 1 posts --sort -published_at --page-size 5`,
		Args:    exactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := flags.query(cmd)
			if err != nil {
				return err
			}
			return runWithService(cmd, func(ctx context.Context, svc *resource.Service) error {
				resp, err := svc.Related(ctx, args[0], args[1], args[2], q)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), resp)
			})
		},
	}
	flags.register(cmd)
	return cmd
}
