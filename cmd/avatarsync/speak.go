package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/normanking/avatarsync/internal/pipeline"
	"github.com/normanking/avatarsync/internal/session"
)

func speakCmd() *cobra.Command {
	var (
		say   bool
		model string
		quiet bool
	)

	cmd := &cobra.Command{
		Use:   "speak <prompt>",
		Short: "Generate a reply, synthesize it and animate it",
		Long: `Sends the prompt to the configured chat model, synthesizes the reply and
plays it through the avatar. With --say the text is spoken as given.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := strings.Join(args, " ")

			return withApp(true, model, quiet, func(ctx context.Context, a *app) error {
				var (
					s   *session.Session
					err error
				)
				if say {
					s, err = a.orch.Say(ctx, input)
				} else {
					var reply string
					s, reply, err = a.orch.Speak(ctx, input)
					if err == nil && quiet {
						fmt.Println(reply)
					}
				}
				if err != nil {
					return err
				}
				return a.await(ctx, s)
			})
		},
	}

	cmd.Flags().BoolVar(&say, "say", false, "speak the text verbatim instead of asking the model")
	cmd.Flags().StringVar(&model, "model", "", "glTF head whose morph targets receive blendshape weights")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "no console meter")

	return cmd
}

func scriptCmd() *cobra.Command {
	var (
		model string
		quiet bool
	)

	cmd := &cobra.Command{
		Use:   "script <file.yaml>",
		Short: "Perform a scripted sequence of lines",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			script, err := pipeline.LoadScript(args[0])
			if err != nil {
				return err
			}

			return withApp(true, model, quiet, func(ctx context.Context, a *app) error {
				err := a.orch.Run(ctx, script)
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			})
		},
	}

	cmd.Flags().StringVar(&model, "model", "", "glTF head whose morph targets receive blendshape weights")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "no console meter")

	return cmd
}

// await blocks until s ends and reports a failed session's error.
func (a *app) await(ctx context.Context, s *session.Session) error {
	if _, err := pipeline.Await(ctx, a.events, s); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
