package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"analytics-chat-be/internal/bootstrap"
	"analytics-chat-be/internal/config"
	"analytics-chat-be/internal/dto"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func main() {
	request := &dto.SeedRequest{}
	var typeMap []string

	rootCmd := &cobra.Command{
		Use:   "seed",
		Short: "Bulk-load a JSON or CSV file into a container",
		RunE: func(cmd *cobra.Command, args []string) error {
			mapping, err := parseTypeMap(typeMap)
			if err != nil {
				return err
			}
			request.TypeMapping = mapping

			c, err := bootstrap.NewToolsContainer(config.Load())
			if err != nil {
				return err
			}
			defer c.Close()

			color.Cyan("Seeding %s into %s", request.FilePath, request.Container)
			res, err := c.SeederService.SeedFromFile(cmd.Context(), request)
			if err != nil {
				return err
			}

			fmt.Printf("Total:   %d\n", res.Total)
			color.Green("Success: %d", res.Success)
			if res.Failed > 0 {
				color.Red("Failed:  %d", res.Failed)
				for _, e := range res.Errors {
					color.Yellow("  - %s", e)
				}
			}
			return nil
		},
	}

	flags := rootCmd.Flags()
	flags.StringVarP(&request.FilePath, "file", "f", "", "Path to a .json or .csv file")
	flags.StringVarP(&request.Container, "container", "c", "", "Target container (gold, conversations, users)")
	flags.StringVar(&request.PartitionKey, "partition-key", "partitionKey", "Partition key field, or comma-separated fields for hierarchical keys")
	flags.StringVar(&request.IDField, "id-field", "id", "Document id field")
	flags.BoolVar(&request.AutoID, "auto-id", true, "Generate ids for items without one")
	flags.BoolVar(&request.AutoPartition, "auto-partition", false, "Generate partition key values when missing")
	flags.StringVar(&request.PartitionFrom, "partition-from", "", "Copy the partition key from this field when missing")
	flags.StringSliceVar(&typeMap, "type-map", nil, "Field conversions as field=type (int, float, bool, datetime)")
	_ = rootCmd.MarkFlagRequired("file")
	_ = rootCmd.MarkFlagRequired("container")

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}

func parseTypeMap(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	mapping := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		field, kind, ok := strings.Cut(pair, "=")
		if !ok || field == "" || kind == "" {
			return nil, fmt.Errorf("invalid --type-map entry %q, want field=type", pair)
		}
		mapping[strings.TrimSpace(field)] = strings.TrimSpace(kind)
	}
	return mapping, nil
}
