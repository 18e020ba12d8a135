package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var conversationsCmd = &cobra.Command{
	Use:     "conversations",
	Aliases: []string{"conv"},
	Short:   "List, show and delete conversations",
	RunE: func(cmd *cobra.Command, args []string) error {
		convs, err := newClient().Conversations(cmd.Context())
		if err != nil {
			return err
		}
		if len(convs) == 0 {
			fmt.Println("Nessuna conversazione.")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "THREAD\tMESSAGGI\tAGGIORNATA\tDESCRIZIONE")
		for _, c := range convs {
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", c.ThreadID, c.MessageCount, c.LastUpdated.Local().Format("2006-01-02 15:04"), c.Description)
		}
		return w.Flush()
	},
}

var showCmd = &cobra.Command{
	Use:   "show [thread-id]",
	Short: "Print the messages of a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		conv, err := newClient().Conversation(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("%s\n\n", conv.Description)
		for _, m := range conv.Messages {
			who := "Tu"
			if m.Role == "assistant" {
				who = "Giorgio"
			}
			fmt.Printf("[%s] %s: %s\n\n", m.Timestamp.Local().Format("15:04"), who, m.Content)
		}
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete [thread-id]",
	Short: "Delete a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := newClient().DeleteConversation(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Println(out.Message)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(conversationsCmd)
	conversationsCmd.AddCommand(showCmd)
	conversationsCmd.AddCommand(deleteCmd)
}
