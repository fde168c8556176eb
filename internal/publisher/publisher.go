// Package publisher posts clips to social platforms. Each platform is an
// Adapter registered at init time; PublishAll fans out across platforms and
// always returns a result per platform, never an error.
package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	config "github.com/maheshrc27/clippost/configs"
	"github.com/maheshrc27/clippost/internal/models"
	"github.com/maheshrc27/clippost/internal/storage"
)

const (
	maxConcurrentPublishes = 3
	requestTimeout         = 30 * time.Second
	maxAttempts            = 3
)

// CredentialSource yields decrypted credentials per user and platform.
type CredentialSource interface {
	GetCredentials(userID, platform string) (*models.Credential, error)
}

// Request is one clip to publish for one user. Overrides swap in
// platform-specific caption and hashtag variants before an adapter runs.
type Request struct {
	UserID    string
	VideoPath string
	Caption   string
	Hashtags  []string
	Overrides map[string]models.PlatformText
}

// Adapter publishes to a single platform. Implementations report failures in
// the result instead of returning errors.
type Adapter interface {
	Platform() string
	Publish(ctx context.Context, cred *models.Credential, req Request) models.PublishResult
}

// Deps carries everything adapters may need.
type Deps struct {
	Config  *config.Config
	Storage *storage.R2Storage
	Log     *slog.Logger
}

// Factory builds a platform adapter from shared dependencies.
type Factory func(deps Deps) Adapter

var (
	registryMu sync.Mutex
	registry   = map[string]Factory{}
)

// RegisterAdapter adds a platform factory. Adapter files call this from
// init(), so every linked-in platform is available by name.
func RegisterAdapter(platform string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[platform] = f
}

// RegisteredPlatforms lists the platform names adapters have registered.
func RegisteredPlatforms() []string {
	registryMu.Lock()
	defer registryMu.Unlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}

type Publisher struct {
	adapters map[string]Adapter
	creds    CredentialSource
	log      *slog.Logger
}

// New instantiates all registered adapters against the given dependencies.
func New(deps Deps, creds CredentialSource) *Publisher {
	registryMu.Lock()
	defer registryMu.Unlock()

	adapters := make(map[string]Adapter, len(registry))
	for name, factory := range registry {
		adapters[name] = factory(deps)
	}
	return &Publisher{adapters: adapters, creds: creds, log: deps.Log}
}

// NewWithAdapters is the constructor used by tests.
func NewWithAdapters(adapters []Adapter, creds CredentialSource, log *slog.Logger) *Publisher {
	m := make(map[string]Adapter, len(adapters))
	for _, a := range adapters {
		m[a.Platform()] = a
	}
	return &Publisher{adapters: m, creds: creds, log: log}
}

// PublishAll posts the clip to every requested platform concurrently. Panics
// in an adapter are converted to failed results so one platform can never
// take down the run.
func (p *Publisher) PublishAll(ctx context.Context, req Request, platforms []string) map[string]models.PublishResult {
	results := make(map[string]models.PublishResult, len(platforms))

	var wg sync.WaitGroup
	var mu sync.Mutex
	sem := make(chan struct{}, maxConcurrentPublishes)

	for _, platform := range platforms {
		wg.Add(1)
		go func(platform string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			result := p.publishOne(ctx, platform, req)

			mu.Lock()
			results[platform] = result
			mu.Unlock()
		}(platform)
	}
	wg.Wait()

	return results
}

func (p *Publisher) publishOne(ctx context.Context, platform string, req Request) (result models.PublishResult) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("publish panicked", "platform", platform, "panic", r)
			result = models.PublishResult{
				Platform: platform,
				Success:  false,
				Error:    fmt.Sprintf("internal error: %v", r),
			}
		}
	}()

	adapter, ok := p.adapters[platform]
	if !ok {
		return models.PublishResult{
			Platform: platform,
			Success:  false,
			Error:    fmt.Sprintf("unknown platform %q", platform),
		}
	}

	cred, err := p.creds.GetCredentials(req.UserID, platform)
	if err != nil {
		return models.PublishResult{
			Platform:     platform,
			Success:      false,
			Error:        fmt.Sprintf("no credentials: %v", err),
			AuthRequired: true,
		}
	}
	if !cred.Expiry.IsZero() && cred.Expiry.Before(time.Now()) {
		return models.PublishResult{
			Platform:     platform,
			Success:      false,
			Error:        "credentials expired",
			AuthRequired: true,
		}
	}

	if override, ok := req.Overrides[platform]; ok {
		req.Caption = override.Caption
		req.Hashtags = override.Hashtags
	}

	p.log.Info("publishing clip", "platform", platform, "user", req.UserID, "video", req.VideoPath)
	result = adapter.Publish(ctx, cred, req)

	if result.Success {
		p.log.Info("publish succeeded", "platform", platform, "post_id", result.PostID)
	} else {
		p.log.Warn("publish failed", "platform", platform, "error", result.Error)
	}
	return result
}

// ComposeCaption joins the caption and hashtags the way every platform
// receives them: caption, blank line, space-separated tags.
func ComposeCaption(caption string, hashtags []string) string {
	if len(hashtags) == 0 {
		return caption
	}
	return caption + "\n\n" + strings.Join(hashtags, " ")
}

// doWithRetry runs fn up to maxAttempts times with exponential backoff,
// retrying only transport-level failures. HTTP status errors are not retried;
// the platform already received the request.
func doWithRetry(ctx context.Context, client *http.Client, build func() (*http.Request, error)) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * time.Second
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		req, err := build()
		if err != nil {
			return nil, err
		}

		resp, err := client.Do(req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("request failed after %d attempts: %w", maxAttempts, lastErr)
}

func failure(platform string, err error) models.PublishResult {
	return models.PublishResult{Platform: platform, Success: false, Error: err.Error()}
}
