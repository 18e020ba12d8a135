package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var threadID string

var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Send a message to Giorgio, or start an interactive session without arguments",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newClient()
		if len(args) > 0 {
			reply, err := client.Chat(cmd.Context(), strings.Join(args, " "), threadID)
			if err != nil {
				return err
			}
			fmt.Println(reply.Reply)
			fmt.Fprintf(os.Stderr, "\nthread: %s\n", reply.ThreadID)
			return nil
		}
		return interactive(cmd.Context(), client)
	},
}

func interactive(ctx context.Context, client *Client) error {
	fmt.Println("Chat con Giorgio. Scrivi /exit per uscire.")
	scanner := bufio.NewScanner(os.Stdin)
	thread := threadID
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/exit", "/quit":
			return nil
		}
		reply, err := client.Chat(ctx, line, thread)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Errore: %v\n", err)
			continue
		}
		thread = reply.ThreadID
		fmt.Printf("\nGiorgio: %s\n\n", reply.Reply)
	}
}

func init() {
	chatCmd.Flags().StringVar(&threadID, "thread", "", "continue an existing conversation")
	rootCmd.AddCommand(chatCmd)
}
