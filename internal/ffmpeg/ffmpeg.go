// Package ffmpeg wraps the ffmpeg and ffprobe binaries. All video and audio
// decoding in the pipeline goes through these subprocess calls; nothing links
// against libav.
package ffmpeg

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
)

type probeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType string `json:"codec_type"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	} `json:"streams"`
}

// ProbeResult is the subset of ffprobe output the pipeline needs.
type ProbeResult struct {
	Duration float64
	Width    int
	Height   int
	HasAudio bool
}

// Probe reads container and stream metadata from a media file.
func Probe(ctx context.Context, filePath string) (*ProbeResult, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		filePath,
	)

	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffprobe failed: %v: %s", err, stderr.String())
	}

	var probed probeOutput
	if err := json.Unmarshal(out.Bytes(), &probed); err != nil {
		return nil, fmt.Errorf("unmarshal ffprobe output: %w", err)
	}

	if probed.Format.Duration == "" {
		return nil, fmt.Errorf("no duration in ffprobe output for %s", filePath)
	}

	duration, err := strconv.ParseFloat(probed.Format.Duration, 64)
	if err != nil {
		return nil, fmt.Errorf("parse duration %q: %w", probed.Format.Duration, err)
	}

	result := &ProbeResult{Duration: duration}
	for _, s := range probed.Streams {
		switch s.CodecType {
		case "video":
			if result.Width == 0 {
				result.Width = s.Width
				result.Height = s.Height
			}
		case "audio":
			result.HasAudio = true
		}
	}

	return result, nil
}

// ExtractSubclip re-encodes [start, start+duration) of the input to H.264
// video with AAC audio. Re-encoding keeps cut points frame accurate, which
// stream copy does not.
func ExtractSubclip(ctx context.Context, inputFile, outputFile string, start, duration float64) error {
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-y",
		"-ss", formatSeconds(start),
		"-i", inputFile,
		"-t", formatSeconds(duration),
		"-c:v", "libx264",
		"-c:a", "aac",
		outputFile,
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg subclip failed: %v: %s", err, stderr.String())
	}
	return nil
}

// ExtractFrame decodes a single frame at the given timestamp as JPEG bytes.
func ExtractFrame(ctx context.Context, inputFile string, timestamp float64) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-ss", formatSeconds(timestamp),
		"-i", inputFile,
		"-frames:v", "1",
		"-f", "image2",
		"-c:v", "mjpeg",
		"-q:v", "5",
		"pipe:1",
	)

	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg frame extract failed: %v: %s", err, stderr.String())
	}
	if out.Len() == 0 {
		return nil, fmt.Errorf("no frame decoded at %.2fs from %s", timestamp, inputFile)
	}
	return out.Bytes(), nil
}

// ExtractMonoPCM decodes the audio track to signed 16-bit mono samples at the
// given rate. The segmenter's silence detector runs over these samples.
func ExtractMonoPCM(ctx context.Context, inputFile string, sampleRate int) ([]int16, error) {
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-i", inputFile,
		"-vn",
		"-ac", "1",
		"-ar", strconv.Itoa(sampleRate),
		"-f", "s16le",
		"pipe:1",
	)

	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg audio decode failed: %v: %s", err, stderr.String())
	}

	raw := out.Bytes()
	samples := make([]int16, len(raw)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(raw[i*2:]))
	}
	return samples, nil
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 3, 64)
}
