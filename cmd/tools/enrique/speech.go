package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/zhouzirui/enrique/backend/internal/app"
	"github.com/zhouzirui/enrique/backend/internal/service/speech"
)

var errSpeechDisabled = errors.New("speech service disabled: set OPENAI_API_KEY")

func (c *cli) speechService(ctx context.Context) (*app.App, error) {
	services, err := c.services(ctx)
	if err != nil {
		return nil, err
	}
	if services.Speech == nil {
		_ = services.Close()
		return nil, errSpeechDisabled
	}
	return services, nil
}

func (c *cli) transcribeCmd() *cobra.Command {
	var (
		format   string
		language string
		timeout  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "transcribe <audio-file>",
		Short: "Transcribe an audio file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			audio, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read audio: %w", err)
			}
			if format == "" {
				format = strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
			}

			services, err := c.speechService(cmd.Context())
			if err != nil {
				return err
			}
			defer services.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			resp, err := services.Speech.TranscribeBuffer(ctx, manualSessionID(c.now()), audio, format, language)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.out, resp.Text)
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "", "audio format, taken from the file extension when empty")
	cmd.Flags().StringVar(&language, "lang", "", "language code, defaults to the configured ASR language")
	cmd.Flags().DurationVar(&timeout, "timeout", 45*time.Second, "request timeout")
	return cmd
}

func (c *cli) speakCmd() *cobra.Command {
	var (
		voice   string
		speed   float64
		output  string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "speak <text>",
		Short: "Synthesize text to an audio file",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if speed < 0 {
				return speech.ErrInvalidSpeed
			}
			services, err := c.speechService(cmd.Context())
			if err != nil {
				return err
			}
			defer services.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			if voice == "" {
				voice = services.Personas.Default().VoiceID
			}
			resp, err := services.Speech.SynthesizeToBuffer(ctx, manualSessionID(c.now()), strings.Join(args, " "), voice, speed)
			if err != nil {
				return err
			}

			if output == "" {
				output = fmt.Sprintf("tts-output-%d.%s", c.now().Unix(), resp.Format)
			}
			if err := os.WriteFile(output, resp.AudioData, 0o644); err != nil {
				return fmt.Errorf("write audio: %w", err)
			}
			fmt.Fprintf(c.out, "wrote %s (voice %s, %d bytes)\n", output, resp.Voice, len(resp.AudioData))
			return nil
		},
	}
	cmd.Flags().StringVar(&voice, "voice", "", "voice name, defaults to the persona voice")
	cmd.Flags().Float64Var(&speed, "speed", 0, "playback speed, 0 uses the configured speed")
	cmd.Flags().StringVarP(&output, "out", "o", "", "output file")
	cmd.Flags().DurationVar(&timeout, "timeout", 45*time.Second, "request timeout")
	return cmd
}

func manualSessionID(now time.Time) string {
	return fmt.Sprintf("cli-%d", now.UnixNano())
}
