package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	serverURL string
	token     string
)

var rootCmd = &cobra.Command{
	Use:   "giorgio-cli",
	Short: "A CLI client for the Giorgio assistant",
	Long:  `A command-line interface to chat with Giorgio, manage conversations and memories, and watch turn events.`,
}

// Execute 执行根命令，出错时以非零状态退出。
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Errore: %s\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("GIORGIO_SERVER", "http://localhost:8080"), "Giorgio service base URL")
	rootCmd.PersistentFlags().StringVar(&token, "token", os.Getenv("GIORGIO_TOKEN"), "JWT bearer token")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func newClient() *Client {
	return NewClient(serverURL, token)
}
