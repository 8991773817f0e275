package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"analytics-chat-be/internal/bootstrap"
	"analytics-chat-be/internal/config"
	"analytics-chat-be/internal/dto"
	"analytics-chat-be/internal/service"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func main() {
	request := &dto.DeleteRequest{}
	var noConfirm bool

	rootCmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete documents by pkType and pkFilter",
		Example: `  delete --container gold --pk-type "repay:settlement" --pk-filter merchant123
  delete --container gold --pk-type "repay:settlement" --pk-filter 20251120 --criteria "<=" --dry-run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("Container: %s\n", request.Container)
			if request.Criteria != "" {
				fmt.Printf("Filter:    pkType = %q AND pkFilter %s %q\n", request.PKType, request.Criteria, request.PKFilter)
			} else {
				fmt.Printf("Filter:    pkType = %q AND pkFilter = %q\n", request.PKType, request.PKFilter)
			}

			if !request.DryRun && !noConfirm && !confirm() {
				color.Yellow("Deletion cancelled.")
				return nil
			}

			c, err := bootstrap.NewToolsContainer(config.Load())
			if err != nil {
				return err
			}
			defer c.Close()

			res, err := c.DeleterService.DeleteByPartitionKey(cmd.Context(), request)
			if err != nil {
				return err
			}

			return report(res)
		},
	}

	flags := rootCmd.Flags()
	flags.StringVarP(&request.Container, "container", "c", "", "Target container (conversations, users, gold)")
	flags.StringVar(&request.PKType, "pk-type", "", "pkType value, e.g. repay:settlement")
	flags.StringVar(&request.PKFilter, "pk-filter", "", "pkFilter value, e.g. a merchant number or a date like 20251122")
	flags.StringVar(&request.Criteria, "criteria", "", "Comparison for pkFilter: "+strings.Join(service.ValidOperators, " "))
	flags.BoolVar(&request.DryRun, "dry-run", false, "Count matching documents without deleting")
	flags.BoolVar(&noConfirm, "no-confirm", false, "Skip the confirmation prompt")
	_ = rootCmd.MarkFlagRequired("container")
	_ = rootCmd.MarkFlagRequired("pk-type")
	_ = rootCmd.MarkFlagRequired("pk-filter")

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}

// report prints the outcome and fails when any matched document survived.
func report(res *dto.DeleteResult) error {
	if res.DryRun {
		color.Cyan("DRY RUN: %d items would be deleted", res.WouldDelete)
		return nil
	}
	color.Green("Deleted: %d", res.Deleted)
	if res.Failed == 0 {
		return nil
	}
	color.Red("Failed:  %d", res.Failed)
	for _, e := range res.Errors {
		color.Yellow("  - %s", e)
	}
	return fmt.Errorf("%d of %d deletions failed", res.Failed, res.Matched)
}

func confirm() bool {
	color.Red("This permanently deletes every matching document.")
	fmt.Print("Type DELETE to continue: ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	return strings.TrimSpace(line) == "DELETE"
}
