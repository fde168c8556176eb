package publisher

import (
	"context"
	"fmt"
	"os"
	"strings"

	"golang.org/x/oauth2"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"github.com/maheshrc27/clippost/internal/models"
)

func init() {
	RegisterAdapter("youtube", func(deps Deps) Adapter {
		return &youtubeAdapter{}
	})
}

type youtubeAdapter struct{}

func (a *youtubeAdapter) Platform() string { return "youtube" }

// Publish uploads the clip as a YouTube Short. The #Shorts tag is what makes
// YouTube route the upload into the Shorts shelf, so it is forced into the
// description if missing.
func (a *youtubeAdapter) Publish(ctx context.Context, cred *models.Credential, req Request) models.PublishResult {
	token := &oauth2.Token{
		AccessToken:  cred.AccessToken,
		RefreshToken: cred.RefreshToken,
		Expiry:       cred.TokenExpiry,
	}

	service, err := youtube.NewService(ctx, option.WithTokenSource(oauth2.StaticTokenSource(token)))
	if err != nil {
		return failure("youtube", fmt.Errorf("create service: %w", err))
	}

	file, err := os.Open(req.VideoPath)
	if err != nil {
		return failure("youtube", fmt.Errorf("open video: %w", err))
	}
	defer file.Close()

	description := ensureShortsTag(ComposeCaption(req.Caption, req.Hashtags))
	video := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       shortsTitle(req.Caption),
			Description: description,
			CategoryId:  "22",
		},
		Status: &youtube.VideoStatus{
			PrivacyStatus:           "public",
			SelfDeclaredMadeForKids: false,
		},
	}

	call := service.Videos.Insert([]string{"snippet", "status"}, video)
	uploaded, err := call.Media(file).Context(ctx).Do()
	if err != nil {
		return failure("youtube", fmt.Errorf("upload: %w", err))
	}

	return models.PublishResult{
		Platform: "youtube",
		Success:  true,
		PostID:   uploaded.Id,
		PostURL:  fmt.Sprintf("https://www.youtube.com/shorts/%s", uploaded.Id),
	}
}

// shortsTitle derives a video title from the caption's first line, trimmed to
// YouTube's 100-character limit with room for the #Shorts suffix.
func shortsTitle(caption string) string {
	title := strings.SplitN(strings.TrimSpace(caption), "\n", 2)[0]
	if title == "" {
		title = "Short video"
	}

	const suffix = " #Shorts"
	limit := 100 - len(suffix)
	if runes := []rune(title); len(runes) > limit {
		title = string(runes[:limit])
	}
	if !containsShortsTag(title) {
		title += suffix
	}
	return title
}

func ensureShortsTag(text string) string {
	if containsShortsTag(text) {
		return text
	}
	return text + "\n\n#Shorts"
}

func containsShortsTag(text string) bool {
	return strings.Contains(strings.ToLower(text), "#shorts")
}
