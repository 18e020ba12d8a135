package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"

	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch real-time turn events for your conversations",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient().Subscribe(cmd.Context())
		if err != nil {
			return fmt.Errorf("dial: %w", err)
		}
		defer c.Close()

		fmt.Println("WebSocket connesso. In attesa di eventi...")
		for {
			_, message, err := c.ReadMessage()
			if err != nil {
				log.Println("read:", err)
				return nil
			}
			var prettyJSON bytes.Buffer
			if err := json.Indent(&prettyJSON, message, "", "  "); err != nil {
				log.Printf("Error formatting JSON: %v. Raw message: %s", err, message)
				continue
			}
			fmt.Println(prettyJSON.String())
		}
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
