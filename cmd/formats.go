package cmd

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/audiolibrelab/streamrec/internal/ffmpeg"
	"github.com/audiolibrelab/streamrec/internal/recorder"

	"github.com/spf13/cobra"
)

var formatsCmd = &cobra.Command{
	Use:   "formats",
	Short: "List supported file formats and check FFmpeg",
	Long: `List the file extensions each recorder accepts with the codec used for them.

When FFmpeg is installed, each codec is checked against the encoders it was
built with. WAV, CSV and JSONL files are written without FFmpeg.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		w := cmd.OutOrStdout()
		encoders := availableEncoders(cmd)

		fmt.Fprintf(w, "🎬 Video (%d formats)\n", len(recorder.VideoExtensions()))
		for _, ext := range recorder.VideoExtensions() {
			codec, _ := recorder.VideoCodecFor(ext)
			fmt.Fprintf(w, "  %-6s %-5s %-10s %s\n", ext, codec.FourCC, codec.Encoder, encoderStatus(encoders, codec.Encoder))
		}

		fmt.Fprintf(w, "\n🎵 Audio (%d formats)\n", len(recorder.AudioExtensions()))
		for _, ext := range recorder.AudioExtensions() {
			format, _ := recorder.AudioFormatFor(ext)
			status := encoderStatus(encoders, format.Codec)
			if ext == ".wav" {
				status = "native"
			}
			fmt.Fprintf(w, "  %-6s %-5s %-15s %-10s %s\n", ext, format.Format, format.Subtype, format.Codec, status)
		}

		fmt.Fprintf(w, "\n📋 Records\n")
		fmt.Fprintf(w, "  %-6s tabular    native\n", ".csv")
		fmt.Fprintf(w, "  %-6s structured native\n", ".jsonl")
		return nil
	},
}

// availableEncoders prints the FFmpeg status line and returns the encoders
// it supports, or nil when FFmpeg cannot be queried.
func availableEncoders(cmd *cobra.Command) []string {
	w := cmd.OutOrStdout()
	if err := ffmpeg.Available(cfg.FFmpeg); err != nil {
		fmt.Fprintf(w, "❌ FFmpeg: %v\n\n", err)
		return nil
	}

	version, err := ffmpeg.Version(cmd.Context(), cfg.FFmpeg)
	if err != nil {
		fmt.Fprintf(w, "❌ FFmpeg: %v\n\n", err)
		return nil
	}
	fmt.Fprintf(w, "✅ %s\n\n", version)

	encoders, err := ffmpeg.Encoders(cmd.Context(), cfg.FFmpeg)
	if err != nil {
		slog.Warn("Could not list FFmpeg encoders", "error", err)
		return nil
	}
	return encoders
}

func encoderStatus(encoders []string, name string) string {
	switch {
	case encoders == nil:
		return "unknown"
	case slices.Contains(encoders, name):
		return "available"
	default:
		return "missing"
	}
}
