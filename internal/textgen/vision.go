package textgen

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// maxVisionFrames caps how many frames one description request carries.
const maxVisionFrames = 3

// VisionDescriber asks the OpenAI vision model for a short description of
// sampled frames. It enriches the heuristic clip context; callers treat
// failures as a missing description, never as a stage error.
type VisionDescriber struct {
	apiKey string
	client *http.Client
}

func NewVisionDescriber(apiKey string) *VisionDescriber {
	return &VisionDescriber{
		apiKey: apiKey,
		client: &http.Client{Timeout: providerTimeout},
	}
}

type visionContent struct {
	Type     string           `json:"type"`
	Text     string           `json:"text,omitempty"`
	ImageURL *visionImagePart `json:"image_url,omitempty"`
}

type visionImagePart struct {
	URL string `json:"url"`
}

// DescribeFrames sends up to three JPEG frames and returns the model's
// one-or-two sentence description of what the video shows.
func (v *VisionDescriber) DescribeFrames(ctx context.Context, frames [][]byte) (string, error) {
	if len(frames) == 0 {
		return "", fmt.Errorf("no frames to describe")
	}
	if len(frames) > maxVisionFrames {
		frames = frames[:maxVisionFrames]
	}

	content := []visionContent{{
		Type: "text",
		Text: "Describe what happens in this video in one or two short sentences, based on these frames.",
	}}
	for _, frame := range frames {
		content = append(content, visionContent{
			Type: "image_url",
			ImageURL: &visionImagePart{
				URL: "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(frame),
			},
		})
	}

	payload, err := json.Marshal(map[string]any{
		"model": "gpt-4o",
		"messages": []map[string]any{
			{"role": "user", "content": content},
		},
		"max_tokens": 120,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		"https://api.openai.com/v1/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+v.apiKey)

	resp, err := v.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("vision request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("vision response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("vision returned status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("vision decode: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("vision returned no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}
