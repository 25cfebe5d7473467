package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/normanking/avatarsync/internal/session"
)

// Line is one step of a script: fixed text to say, or a prompt for the
// generator. Pause is waited after the line finishes.
type Line struct {
	Text   string        `yaml:"text,omitempty"`
	Prompt string        `yaml:"prompt,omitempty"`
	Pause  time.Duration `yaml:"pause,omitempty"`
}

// Script is a sequence of lines
type Script struct {
	Name  string `yaml:"name,omitempty"`
	Lines []Line `yaml:"lines"`
}

// LoadScript reads a YAML script
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var script Script
	if err := yaml.Unmarshal(data, &script); err != nil {
		return nil, fmt.Errorf("parse script: %w", err)
	}
	if len(script.Lines) == 0 {
		return nil, errors.New("script has no lines")
	}
	for i, line := range script.Lines {
		hasText := strings.TrimSpace(line.Text) != ""
		hasPrompt := strings.TrimSpace(line.Prompt) != ""
		if hasText == hasPrompt {
			return nil, fmt.Errorf("line %d: set exactly one of text or prompt", i+1)
		}
		if line.Pause < 0 {
			return nil, fmt.Errorf("line %d: negative pause", i+1)
		}
	}
	return &script, nil
}

// Run plays every line in order, waiting for each session to end. A failed
// line is logged and skipped; cancellation stops the script.
func (o *Orchestrator) Run(ctx context.Context, script *Script) error {
	if o.events == nil {
		return ErrNoEvents
	}
	for i, line := range script.Lines {
		var (
			s   *session.Session
			err error
		)
		if line.Prompt != "" {
			s, _, err = o.Speak(ctx, line.Prompt)
		} else {
			s, err = o.Say(ctx, line.Text)
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			o.logger.Warn().Err(err).Int("line", i+1).Msg("Skipping line")
			continue
		}

		state, err := Await(ctx, o.events, s)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			o.logger.Warn().Err(err).Int("line", i+1).Stringer("state", state).Msg("Line did not complete")
		}

		if line.Pause > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(line.Pause):
			}
		}
	}
	return nil
}
