package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	version    = "dev"
	commit     = "none"
	buildDate  = "unknown"
	jsonOutput bool
	configPath string
	logLevel   string
	logFormat  string
)

// Result is the envelope printed with --json.
type Result struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "onboard",
		Short: "Feed project knowledge into per-client memory assistants",
		Long: `Onboard watches Google Drive documents, Telegram group chats and uploaded
files, and forwards new content to each client's Backboard assistant so it can
answer onboarding questions about the project.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config.yaml")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format (text, json)")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version info",
		Run: func(cmd *cobra.Command, args []string) {
			if jsonOutput {
				printJSON(map[string]string{
					"version": version,
					"commit":  commit,
					"date":    buildDate,
				})
				return
			}
			fmt.Printf("onboard %s (%s, %s)\n", version, commit, buildDate)
		},
	})

	rootCmd.AddCommand(
		newInitCmd(),
		newKeygenCmd(),
		newClientCmd(),
		newDriveCmd(),
		newPollCmd(),
		newSendCmd(),
		newSummarizeCmd(),
		newUploadCmd(),
		newToolCmd(),
		newServeCmd(),
		newTelegramCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fail(err.Error())
	}
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}

// fail reports msg in the selected output mode and exits 1.
func fail(msg string) {
	if jsonOutput {
		printJSON(Result{OK: false, Message: msg})
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
	}
	os.Exit(1)
}

// succeed prints a Result, or text for humans.
func succeed(msg string, data any, text func()) {
	if jsonOutput {
		printJSON(Result{OK: true, Message: msg, Data: data})
		return
	}
	if text != nil {
		text()
		return
	}
	fmt.Println(msg)
}
