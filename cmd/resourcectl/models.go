package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"resourcegraph/internal/resource"
	"resourcegraph/internal/schema"
)

type fieldInfo struct {
	Name     string `json:"name"`
	Column   string `json:"column"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
}

type relationInfo struct {
	Name        string              `json:"name"`
	Kind        schema.RelationKind `json:"kind"`
	Target      string              `json:"target"`
	Cardinality schema.Cardinality  `json:"cardinality"`
	Loading     schema.Loading      `json:"loading"`
}

type modelInfo struct {
	Name       string         `json:"name"`
	Collection string         `json:"collection"`
	Table      string         `json:"table"`
	PrimaryKey []string       `json:"primary_key"`
	Fields     []fieldInfo    `json:"fields"`
	Relations  []relationInfo `json:"relations"`
}

func describeModels(reg *schema.Registry) []modelInfo {
	models := reg.Models()
	out := make([]modelInfo, 0, len(models))
	for _, m := range models {
		info := modelInfo{
			Name:       m.Name,
			Collection: m.Collection,
			Table:      m.Table,
			PrimaryKey: m.PrimaryKey(),
			Fields:     []fieldInfo{},
			Relations:  []relationInfo{},
		}
		for _, f := range m.Fields() {
			info.Fields = append(info.Fields, fieldInfo{Name: f.Name, Column: f.Column, Type: f.Type.String(), Nullable: f.Nullable})
		}
		for _, rel := range m.Relations() {
			info.Relations = append(info.Relations, relationInfo{
				Name:        rel.Name,
				Kind:        rel.Kind,
				Target:      rel.Target.Name,
				Cardinality: rel.Cardinality(),
				Loading:     rel.Loading,
			})
		}
		out = append(out, info)
	}
	return out
}

func newModelsCommand() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "models",
		Short: "Describe the loaded models",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "json" && format != "table" {
				return usageError{fmt.Errorf("unknown format %q (use json or table)", format)}
			}
			return runWithService(cmd, func(_ context.Context, svc *resource.Service) error {
				models := describeModels(svc.Registry())
				if format == "table" {
					return writeModelTable(cmd.OutOrStdout(), models)
				}
				return writeJSON(cmd.OutOrStdout(), models)
			})
		},
	}
	cmd.Flags().StringVar(&format, "format", "json", "Output format: json or table")
	return cmd
}

func writeModelTable(w io.Writer, models []modelInfo) error {
	title := color.New(color.FgCyan, color.Bold)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for i, m := range models {
		if i > 0 {
			fmt.Fprintln(tw)
		}
		title.Fprintf(tw, "%s", m.Name)
		fmt.Fprintf(tw, "\t/%s\ttable %s\tkey %s\n", m.Collection, m.Table, strings.Join(m.PrimaryKey, ","))
		for _, f := range m.Fields {
			nullable := ""
			if f.Nullable {
				nullable = "nullable"
			}
			fmt.Fprintf(tw, "  %s\t%s\t%s\t\n", f.Name, f.Type, nullable)
		}
		for _, rel := range m.Relations {
			fmt.Fprintf(tw, "  %s\t%s -> %s\t%s\t\n", rel.Name, rel.Kind, rel.Target, strings.ToLower(string(rel.Loading)))
		}
	}
	return tw.Flush()
}
