// Command transcribe runs the transcription pipeline over a single media file
// and writes the .transcript.json sidecar next to it. It shares the extraction
// and recognition code with the recording service but touches no database.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/onnwee/stream-scribe/runner"
	"github.com/onnwee/stream-scribe/transcribe"
	"github.com/onnwee/stream-scribe/transcribe/vosk"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var modelDir string
	var keepWAV bool

	rootCmd := &cobra.Command{
		Use:           "transcribe <media-file>",
		Short:         "Transcribe a recording into a JSON sidecar",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			lvl := slog.LevelInfo
			if strings.ToLower(os.Getenv("LOG_LEVEL")) == "debug" {
				lvl = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))

			if modelDir == "" {
				modelDir = os.Getenv("MODEL_DIR")
			}
			if modelDir == "" {
				return fmt.Errorf("no model directory: pass --model or set MODEL_DIR")
			}

			mediaPath := args[0]
			if _, err := os.Stat(mediaPath); err != nil {
				return fmt.Errorf("media file: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			factory, err := vosk.NewFactory(modelDir)
			if err != nil {
				return fmt.Errorf("load model: %w", err)
			}
			defer factory.Close()

			pipeline := &transcribe.Pipeline{
				Run:     runner.Exec{},
				Factory: factory,
				KeepWAV: keepWAV,
			}
			sidecar, err := pipeline.ProcessRecording(ctx, mediaPath)
			if err != nil {
				return err
			}
			fmt.Println(sidecar)
			return nil
		},
	}

	rootCmd.Flags().StringVarP(&modelDir, "model", "m", "", "Speech model directory (defaults to MODEL_DIR)")
	rootCmd.Flags().BoolVar(&keepWAV, "keep-wav", false, "Keep the intermediate 16 kHz mono waveform")

	return rootCmd
}
