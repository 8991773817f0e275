package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"analytics-chat-be/internal/bootstrap"
	"analytics-chat-be/internal/config"
	"analytics-chat-be/internal/dto"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func main() {
	var conversationID, container, userID string
	var interactive bool

	rootCmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question about the financial data",
		Args: func(cmd *cobra.Command, args []string) error {
			if !interactive && len(args) == 0 {
				return fmt.Errorf("a question is required unless --interactive is set")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			c, err := bootstrap.NewContainer(cfg)
			if err != nil {
				return err
			}
			defer c.Close()

			if container == "" {
				container = cfg.Pipeline.DefaultContainer
			}

			base := dto.AskRequest{ConversationID: conversationID, UserID: userID, Container: container}
			if !interactive {
				_, err := ask(cmd.Context(), c, base, strings.Join(args, " "))
				return err
			}
			return repl(cmd.Context(), c, base)
		},
	}

	rootCmd.Flags().StringVarP(&conversationID, "conversation", "c", "", "Conversation ID to continue (generated when empty)")
	rootCmd.Flags().StringVar(&container, "container", "", "Container to query (default from PIPELINE_DEFAULT_CONTAINER)")
	rootCmd.Flags().StringVarP(&userID, "user", "u", "", "User ID asking the question (must exist in the users container)")
	rootCmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "Start an interactive session")

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}

func ask(ctx context.Context, c *bootstrap.Container, base dto.AskRequest, question string) (string, error) {
	req := base
	req.Question = question
	res, err := c.ChatService.Ask(ctx, &req)
	if err != nil {
		return base.ConversationID, err
	}

	if res.Metadata.Error != "" {
		color.Yellow("%s", res.Answer)
	} else {
		fmt.Println(res.Answer)
	}

	if len(res.Suggestions) > 0 {
		color.Cyan("\nYou might also ask:")
		for i, s := range res.Suggestions {
			fmt.Printf("  %d. %s\n", i+1, s)
		}
	}
	if r := res.Metadata.Retrieval; r != nil && r.QueryExecuted {
		color.New(color.Faint).Printf("\n(%d records, %s)\n", r.RecordCount, res.Metadata.Duration.Round(time.Millisecond))
	}
	return res.ConversationID, nil
}

func repl(ctx context.Context, c *bootstrap.Container, base dto.AskRequest) error {
	color.Cyan("Interactive mode. Type 'exit' to quit, 'clear' to reset the conversation.")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		color.New(color.FgGreen, color.Bold).Print("\n> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		question := strings.TrimSpace(scanner.Text())
		switch question {
		case "":
			continue
		case "exit", "quit":
			return nil
		case "clear":
			if base.ConversationID != "" {
				c.ChatService.ClearConversation(base.ConversationID)
			}
			color.Yellow("Conversation cleared.")
			continue
		}

		id, err := ask(ctx, c, base, question)
		if err != nil {
			color.Red("Error: %v", err)
			continue
		}
		base.ConversationID = id
	}
}
