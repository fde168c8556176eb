package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/maheshrc27/clippost/internal/models"
)

const tiktokAPIBase = "https://open.tiktokapis.com/v2"

func init() {
	RegisterAdapter("tiktok", func(deps Deps) Adapter {
		return &tiktokAdapter{
			client: &http.Client{Timeout: requestTimeout},
		}
	})
}

type tiktokAdapter struct {
	client *http.Client
}

func (a *tiktokAdapter) Platform() string { return "tiktok" }

type tiktokCreatorInfo struct {
	Data struct {
		CreatorUsername string   `json:"creator_username"`
		PrivacyOptions  []string `json:"privacy_level_options"`
	} `json:"data"`
	Error tiktokError `json:"error"`
}

type tiktokInitResponse struct {
	Data struct {
		PublishID string `json:"publish_id"`
		UploadURL string `json:"upload_url"`
	} `json:"data"`
	Error tiktokError `json:"error"`
}

type tiktokStatusResponse struct {
	Data struct {
		Status string `json:"status"`
	} `json:"data"`
	Error tiktokError `json:"error"`
}

type tiktokError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e tiktokError) ok() bool {
	return e.Code == "" || e.Code == "ok"
}

// Publish uploads the clip through TikTok's direct-post flow: query creator
// info, init a FILE_UPLOAD publish, PUT the bytes, then fetch the publish
// status.
func (a *tiktokAdapter) Publish(ctx context.Context, cred *models.Credential, req Request) models.PublishResult {
	info, err := a.creatorInfo(ctx, cred.AccessToken)
	if err != nil {
		return failure("tiktok", fmt.Errorf("creator info: %w", err))
	}

	video, err := os.ReadFile(req.VideoPath)
	if err != nil {
		return failure("tiktok", fmt.Errorf("read video: %w", err))
	}

	caption := ComposeCaption(req.Caption, req.Hashtags)
	initResp, err := a.initPublish(ctx, cred.AccessToken, caption, len(video))
	if err != nil {
		return failure("tiktok", fmt.Errorf("init publish: %w", err))
	}

	if err := a.uploadBytes(ctx, initResp.Data.UploadURL, video); err != nil {
		return failure("tiktok", fmt.Errorf("upload: %w", err))
	}

	status, err := a.fetchStatus(ctx, cred.AccessToken, initResp.Data.PublishID)
	if err != nil {
		return failure("tiktok", fmt.Errorf("status fetch: %w", err))
	}
	if status == "FAILED" {
		return failure("tiktok", fmt.Errorf("tiktok reported publish failure"))
	}

	return models.PublishResult{
		Platform: "tiktok",
		Success:  true,
		PostID:   initResp.Data.PublishID,
		PostURL:  fmt.Sprintf("https://www.tiktok.com/@%s", info.Data.CreatorUsername),
	}
}

func (a *tiktokAdapter) creatorInfo(ctx context.Context, token string) (*tiktokCreatorInfo, error) {
	var info tiktokCreatorInfo
	err := a.postJSON(ctx, token, tiktokAPIBase+"/post/publish/creator_info/query/", nil, &info)
	if err != nil {
		return nil, err
	}
	if !info.Error.ok() {
		return nil, fmt.Errorf("%s: %s", info.Error.Code, info.Error.Message)
	}
	return &info, nil
}

func (a *tiktokAdapter) initPublish(ctx context.Context, token, caption string, size int) (*tiktokInitResponse, error) {
	body := map[string]any{
		"post_info": map[string]any{
			"title":         caption,
			"privacy_level": "SELF_ONLY",
		},
		"source_info": map[string]any{
			"source":            "FILE_UPLOAD",
			"video_size":        size,
			"chunk_size":        size,
			"total_chunk_count": 1,
		},
	}

	var initResp tiktokInitResponse
	if err := a.postJSON(ctx, token, tiktokAPIBase+"/post/publish/video/init/", body, &initResp); err != nil {
		return nil, err
	}
	if !initResp.Error.ok() {
		return nil, fmt.Errorf("%s: %s", initResp.Error.Code, initResp.Error.Message)
	}
	if initResp.Data.UploadURL == "" {
		return nil, fmt.Errorf("no upload url in init response")
	}
	return &initResp, nil
}

func (a *tiktokAdapter) uploadBytes(ctx context.Context, uploadURL string, video []byte) error {
	resp, err := doWithRetry(ctx, a.client, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, bytes.NewReader(video))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "video/mp4")
		req.Header.Set("Content-Range", fmt.Sprintf("bytes 0-%d/%d", len(video)-1, len(video)))
		req.ContentLength = int64(len(video))
		return req, nil
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("upload returned status %d", resp.StatusCode)
	}
	return nil
}

func (a *tiktokAdapter) fetchStatus(ctx context.Context, token, publishID string) (string, error) {
	var status tiktokStatusResponse
	body := map[string]any{"publish_id": publishID}
	if err := a.postJSON(ctx, token, tiktokAPIBase+"/post/publish/status/fetch/", body, &status); err != nil {
		return "", err
	}
	if !status.Error.ok() {
		return "", fmt.Errorf("%s: %s", status.Error.Code, status.Error.Message)
	}
	return status.Data.Status, nil
}

func (a *tiktokAdapter) postJSON(ctx context.Context, token, url string, body any, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return err
		}
	}

	resp, err := doWithRetry(ctx, a.client, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Content-Type", "application/json; charset=UTF-8")
		return req, nil
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("status %d: %s", resp.StatusCode, truncateBody(data))
	}
	return json.Unmarshal(data, out)
}

func truncateBody(data []byte) string {
	if len(data) > 200 {
		data = data[:200]
	}
	return string(data)
}
