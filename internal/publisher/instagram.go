package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/maheshrc27/clippost/internal/models"
	"github.com/maheshrc27/clippost/internal/storage"
)

const (
	graphAPIBase = "https://graph.facebook.com/v21.0"

	containerPollInterval = 2 * time.Second
	containerPollLimit    = 30
)

func init() {
	RegisterAdapter("instagram", func(deps Deps) Adapter {
		return &instagramAdapter{
			storage: deps.Storage,
			client:  &http.Client{Timeout: requestTimeout},
			log:     deps.Log,
		}
	})
}

type instagramAdapter struct {
	storage *storage.R2Storage
	client  *http.Client
	log     *slog.Logger
}

func (a *instagramAdapter) Platform() string { return "instagram" }

// Publish posts the clip as a Reel. The Graph API only ingests videos from a
// public URL, so the clip is parked in R2 first and removed again once the
// container has been published.
func (a *instagramAdapter) Publish(ctx context.Context, cred *models.Credential, req Request) models.PublishResult {
	if a.storage == nil {
		return failure("instagram", fmt.Errorf("no object storage configured"))
	}
	if cred.AccountID == "" {
		return models.PublishResult{
			Platform:     "instagram",
			Success:      false,
			Error:        "credential has no instagram account id",
			AuthRequired: true,
		}
	}

	file, err := os.Open(req.VideoPath)
	if err != nil {
		return failure("instagram", fmt.Errorf("open video: %w", err))
	}
	defer file.Close()

	key := parkedKey(req.VideoPath)
	videoURL, err := a.storage.UploadFile(ctx, key, file, "video/mp4")
	if err != nil {
		return failure("instagram", fmt.Errorf("park video: %w", err))
	}
	defer func() {
		if err := a.storage.DeleteFile(context.WithoutCancel(ctx), key); err != nil {
			a.log.Warn("failed to remove parked video", "key", key, "error", err)
		}
	}()

	caption := ComposeCaption(req.Caption, req.Hashtags)
	containerID, err := a.createContainer(ctx, cred, videoURL, caption)
	if err != nil {
		return failure("instagram", fmt.Errorf("create container: %w", err))
	}

	if err := a.waitForContainer(ctx, cred, containerID); err != nil {
		return failure("instagram", err)
	}

	mediaID, err := a.publishContainer(ctx, cred, containerID)
	if err != nil {
		return failure("instagram", fmt.Errorf("publish container: %w", err))
	}

	permalink, err := a.permalink(ctx, cred, mediaID)
	if err != nil {
		a.log.Warn("could not resolve permalink", "media_id", mediaID, "error", err)
	}

	return models.PublishResult{
		Platform: "instagram",
		Success:  true,
		PostID:   mediaID,
		PostURL:  permalink,
	}
}

func (a *instagramAdapter) createContainer(ctx context.Context, cred *models.Credential, videoURL, caption string) (string, error) {
	params := url.Values{
		"media_type":   {"REELS"},
		"video_url":    {videoURL},
		"caption":      {caption},
		"access_token": {cred.AccessToken},
	}

	var resp struct {
		ID string `json:"id"`
	}
	endpoint := fmt.Sprintf("%s/%s/media", graphAPIBase, cred.AccountID)
	if err := a.postForm(ctx, endpoint, params, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", fmt.Errorf("no container id returned")
	}
	return resp.ID, nil
}

// waitForContainer polls until Instagram finishes ingesting the video.
func (a *instagramAdapter) waitForContainer(ctx context.Context, cred *models.Credential, containerID string) error {
	for i := 0; i < containerPollLimit; i++ {
		var resp struct {
			StatusCode string `json:"status_code"`
		}
		endpoint := fmt.Sprintf("%s/%s?fields=status_code&access_token=%s",
			graphAPIBase, containerID, url.QueryEscape(cred.AccessToken))
		if err := a.getJSON(ctx, endpoint, &resp); err != nil {
			return fmt.Errorf("container status: %w", err)
		}

		switch resp.StatusCode {
		case "FINISHED":
			return nil
		case "ERROR", "EXPIRED":
			return fmt.Errorf("container entered state %s", resp.StatusCode)
		}

		select {
		case <-time.After(containerPollInterval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("container not ready after %d polls", containerPollLimit)
}

func (a *instagramAdapter) publishContainer(ctx context.Context, cred *models.Credential, containerID string) (string, error) {
	params := url.Values{
		"creation_id":  {containerID},
		"access_token": {cred.AccessToken},
	}

	var resp struct {
		ID string `json:"id"`
	}
	endpoint := fmt.Sprintf("%s/%s/media_publish", graphAPIBase, cred.AccountID)
	if err := a.postForm(ctx, endpoint, params, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", fmt.Errorf("no media id returned")
	}
	return resp.ID, nil
}

func (a *instagramAdapter) permalink(ctx context.Context, cred *models.Credential, mediaID string) (string, error) {
	var resp struct {
		Permalink string `json:"permalink"`
	}
	endpoint := fmt.Sprintf("%s/%s?fields=permalink&access_token=%s",
		graphAPIBase, mediaID, url.QueryEscape(cred.AccessToken))
	if err := a.getJSON(ctx, endpoint, &resp); err != nil {
		return "", err
	}
	return resp.Permalink, nil
}

func (a *instagramAdapter) postForm(ctx context.Context, endpoint string, params url.Values, out any) error {
	body := params.Encode()
	resp, err := doWithRetry(ctx, a.client, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	})
	if err != nil {
		return err
	}
	return decodeGraphResponse(resp, out)
}

func (a *instagramAdapter) getJSON(ctx context.Context, endpoint string, out any) error {
	resp, err := doWithRetry(ctx, a.client, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	})
	if err != nil {
		return err
	}
	return decodeGraphResponse(resp, out)
}

func decodeGraphResponse(resp *http.Response, out any) error {
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		var graphErr struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(data, &graphErr) == nil && graphErr.Error.Message != "" {
			return fmt.Errorf("graph api: %s", graphErr.Error.Message)
		}
		return fmt.Errorf("graph api status %d: %s", resp.StatusCode, truncateBody(data))
	}
	return json.Unmarshal(data, out)
}

// parkedKey names the temporary R2 object for a clip.
func parkedKey(videoPath string) string {
	suffix, err := gonanoid.New(10)
	if err != nil {
		suffix = fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return fmt.Sprintf("clips/%s_%s", suffix, filepath.Base(videoPath))
}
