// Package main is the entry point for the avatarsync CLI: it plays speech
// through the sync engine and streams the resulting animation parameters
// and captions to renderers.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "0.1.0"
	cfgPath string
	verbose bool
	mute    bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "avatarsync",
		Short: "avatarsync - audio-reactive talking avatar engine",
		Long: `avatarsync turns synthesized speech into per-frame animation parameters
(band energies and mouth opening) and word-by-word captions.

Play an audio file:      avatarsync play speech.wav --text "hello there"
Ask the avatar:          avatarsync speak "what is the sea"
Run a script:            avatarsync script lines.yaml
Configuration:           avatarsync config show`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file path (default ~/.avatarsync/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().BoolVar(&mute, "mute", false, "animate without playing audio")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("avatarsync v%s\n", version)
		},
	})

	rootCmd.AddCommand(playCmd())
	rootCmd.AddCommand(speakCmd())
	rootCmd.AddCommand(scriptCmd())
	rootCmd.AddCommand(configCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
