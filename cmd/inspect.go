package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/audiolibrelab/streamrec/internal/inspect"

	"github.com/spf13/cobra"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect FILE",
	Short: "Summarise a recording",
	Long: `Read a recording back and report what it contains: frames, sample rate and
channels for media files, columns and rows for CSV, records for JSONL.

Media files other than WAV are probed with ffprobe.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")

		s, err := inspect.File(cmd.Context(), cfg.FFmpeg, args[0])
		if err != nil {
			return fmt.Errorf("failed to inspect %s: %w", args[0], err)
		}

		switch output {
		case "json":
			out, err := json.MarshalIndent(s, "", "  ")
			if err != nil {
				return fmt.Errorf("error marshaling summary: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
		case "yaml":
			out, err := yaml.Marshal(s)
			if err != nil {
				return fmt.Errorf("error marshaling summary: %w", err)
			}
			fmt.Fprint(cmd.OutOrStdout(), string(out))
		case "text":
			printSummary(cmd, s)
		default:
			return fmt.Errorf("unsupported output %q (expected text, json or yaml)", output)
		}
		return nil
	},
}

func init() {
	inspectCmd.Flags().StringP("output", "o", "text", "output format: text, json or yaml")
}

func printSummary(cmd *cobra.Command, s *inspect.Summary) {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "path: %s\n", s.Path)
	fmt.Fprintf(w, "format: %s\n", s.Format)
	fmt.Fprintf(w, "size: %d\n", s.Size)

	switch s.Format {
	case "video":
		fmt.Fprintf(w, "codec: %s\n", s.Codec)
		fmt.Fprintf(w, "resolution: %dx%d\n", s.Width, s.Height)
		fmt.Fprintf(w, "frames: %d\n", s.Frames)
		fmt.Fprintf(w, "duration: %.3fs\n", s.Duration)
	case "audio":
		fmt.Fprintf(w, "codec: %s\n", s.Codec)
		fmt.Fprintf(w, "sample_rate: %d\n", s.SampleRate)
		fmt.Fprintf(w, "channels: %d\n", s.Channels)
		fmt.Fprintf(w, "frames: %d\n", s.Frames)
		fmt.Fprintf(w, "duration: %.3fs\n", s.Duration)
	case "tabular":
		fmt.Fprintf(w, "columns: %s\n", strings.Join(s.Columns, ", "))
		fmt.Fprintf(w, "rows: %d\n", s.Rows)
		printTimestamps(cmd, s)
	case "structured":
		fmt.Fprintf(w, "records: %d\n", s.Records)
		printTimestamps(cmd, s)
	}
}

func printTimestamps(cmd *cobra.Command, s *inspect.Summary) {
	if s.Rows == 0 && s.Records == 0 {
		return
	}
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "first_timestamp: %.6f\n", s.FirstTimestamp)
	fmt.Fprintf(w, "last_timestamp: %.6f\n", s.LastTimestamp)
}
