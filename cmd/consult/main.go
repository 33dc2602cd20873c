package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "consult",
	Short: "Join a telecare video consultation from the terminal",
	Long: `consult joins the video consultation of a booked appointment. Camera,
microphone and screen are read from IVF/Ogg files, and the call is shown as a
terminal call screen with chat.`,
}

func main() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
