// Package inspect reads recordings back and summarises them.
package inspect

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-audio/wav"

	"github.com/audiolibrelab/streamrec/internal/ffmpeg"
)

// Summary describes a recording. Only the fields relevant to its format are
// set.
type Summary struct {
	Path   string `json:"path" yaml:"path"`
	Format string `json:"format" yaml:"format"`
	Size   int64  `json:"size" yaml:"size"`

	Codec      string  `json:"codec,omitempty" yaml:"codec,omitempty"`
	Duration   float64 `json:"duration,omitempty" yaml:"duration,omitempty"`
	SampleRate int     `json:"sample_rate,omitempty" yaml:"sample_rate,omitempty"`
	Channels   int     `json:"channels,omitempty" yaml:"channels,omitempty"`
	Frames     int     `json:"frames,omitempty" yaml:"frames,omitempty"`
	Width      int     `json:"width,omitempty" yaml:"width,omitempty"`
	Height     int     `json:"height,omitempty" yaml:"height,omitempty"`

	Columns []string `json:"columns,omitempty" yaml:"columns,omitempty"`
	Rows    int      `json:"rows,omitempty" yaml:"rows,omitempty"`
	Records int      `json:"records,omitempty" yaml:"records,omitempty"`

	FirstTimestamp float64 `json:"first_timestamp,omitempty" yaml:"first_timestamp,omitempty"`
	LastTimestamp  float64 `json:"last_timestamp,omitempty" yaml:"last_timestamp,omitempty"`
}

// File summarises path, choosing the reader by extension. WAV, CSV and
// JSONL are read directly; anything else is handed to ffprobe.
func File(ctx context.Context, opts ffmpeg.Options, path string) (*Summary, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}

	var s *Summary
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		s, err = WAV(path)
	case ".csv":
		s, err = CSV(path)
	case ".jsonl":
		s, err = JSONL(path)
	default:
		s, err = Probe(ctx, opts, path)
	}
	if err != nil {
		return nil, err
	}
	s.Path = path
	s.Size = info.Size()
	return s, nil
}

// WAV reads the header and counts the sample frames of a WAV file.
func WAV(path string) (*Summary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return nil, fmt.Errorf("%s is not a valid WAV file", path)
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to read samples from %s: %w", path, err)
	}

	channels := int(d.NumChans)
	frames := len(buf.Data) / channels
	return &Summary{
		Format:     "audio",
		Codec:      fmt.Sprintf("pcm_s%dle", d.BitDepth),
		SampleRate: int(d.SampleRate),
		Channels:   channels,
		Frames:     frames,
		Duration:   float64(frames) / float64(d.SampleRate),
	}, nil
}

// CSV reads the header row and counts data rows. When the first column
// holds numbers it is reported as the timestamp range.
func CSV(path string) (*Summary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return &Summary{Format: "tabular"}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header of %s: %w", path, err)
	}

	s := &Summary{Format: "tabular", Columns: header}
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		s.Rows++
		if ts, err := strconv.ParseFloat(rec[0], 64); err == nil {
			if s.Rows == 1 {
				s.FirstTimestamp = ts
			}
			s.LastTimestamp = ts
		}
	}
	return s, nil
}

// JSONL counts the records of a structured recording and checks that each
// line is an object with exactly the keys timestamp and data.
func JSONL(path string) (*Summary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	s := &Summary{Format: "structured"}
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		var rec map[string]json.RawMessage
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		raw, ok := rec["timestamp"]
		if _, hasData := rec["data"]; !ok || !hasData || len(rec) != 2 {
			return nil, fmt.Errorf("%s:%d: expected keys timestamp and data", path, line)
		}
		var ts float64
		if err := json.Unmarshal(raw, &ts); err != nil {
			return nil, fmt.Errorf("%s:%d: timestamp: %w", path, line, err)
		}
		if s.Records == 0 {
			s.FirstTimestamp = ts
		}
		s.LastTimestamp = ts
		s.Records++
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Probe summarises a media file with ffprobe. The first video stream wins
// over audio streams.
func Probe(ctx context.Context, opts ffmpeg.Options, path string) (*Summary, error) {
	res, err := ffmpeg.Probe(ctx, opts, path)
	if err != nil {
		return nil, err
	}

	s := &Summary{}
	s.Duration, _ = strconv.ParseFloat(res.Format.Duration, 64)
	if v, ok := res.FirstStream("video"); ok {
		s.Format = "video"
		s.Codec = v.CodecName
		s.Width = v.Width
		s.Height = v.Height
		s.Frames = v.Frames()
		return s, nil
	}
	if a, ok := res.FirstStream("audio"); ok {
		s.Format = "audio"
		s.Codec = a.CodecName
		s.Channels = a.Channels
		s.SampleRate, _ = strconv.Atoi(a.SampleRate)
		// ffprobe counts codec packets for audio, so derive sample frames
		// from the stream duration instead.
		if d, err := strconv.ParseFloat(a.Duration, 64); err == nil {
			s.Frames = int(math.Round(d * float64(s.SampleRate)))
		}
		return s, nil
	}
	return nil, fmt.Errorf("%s has no audio or video stream", path)
}
