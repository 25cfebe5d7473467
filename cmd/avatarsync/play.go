package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/normanking/avatarsync/internal/caption"
)

func playCmd() *cobra.Command {
	var (
		text  string
		model string
		quiet bool
	)

	cmd := &cobra.Command{
		Use:   "play <audio-file>",
		Short: "Animate a WAV or MP3 file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			return withApp(false, model, quiet, func(ctx context.Context, a *app) error {
				s, err := a.controller.Prepare(raw, caption.Words(text))
				if err != nil {
					return err
				}
				return a.await(ctx, s)
			})
		},
	}

	cmd.Flags().StringVarP(&text, "text", "t", "", "caption text spoken in the file")
	cmd.Flags().StringVar(&model, "model", "", "glTF head whose morph targets receive blendshape weights")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "no console meter")

	return cmd
}

// withApp builds and starts the engine, runs the render loop in the
// background and calls fn. Ctrl+C cancels fn's context.
func withApp(withVoice bool, model string, quiet bool, fn func(ctx context.Context, a *app) error) error {
	a, err := newApp(withVoice)
	if err != nil {
		return err
	}
	defer a.close()

	if model != "" {
		bound, err := a.rig.BindMorphTargets(model)
		if err != nil {
			return fmt.Errorf("load model: %w", err)
		}
		a.logger.Info().Str("model", model).Int("bound", bound).Msg("Morph targets bound")
	}

	if err := a.start(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go a.render(ctx)

	if !quiet {
		meter := newMeter(os.Stdout)
		defer meter.finish()
		unsub := a.controller.Subscribe(meter.onFrame)
		defer unsub()
		unsubCaptions := a.controller.SubscribeCaptions(meter.onCaption)
		defer unsubCaptions()
	}

	return fn(ctx, a)
}
