package textgen

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{name: "identical", a: "Great video", b: "Great video", want: 1},
		{name: "punctuation variant", a: "A", b: "A.", want: 1},
		{name: "prefix", a: "Watch this", b: "Watch this amazing clip", want: 1},
		{name: "both empty", a: "", b: "", want: 1},
		{name: "one empty", a: "caption", b: "", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Similarity(tt.a, tt.b); got != tt.want {
				t.Errorf("Similarity(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}

	if got := Similarity("sunset over the bay", "gym workout routine"); got >= similarityThreshold {
		t.Errorf("unrelated captions scored %v, want below %v", got, similarityThreshold)
	}
}

func TestDedupeCaptions(t *testing.T) {
	captions := []string{
		"Amazing sunset timelapse",
		"Amazing sunset timelapse!",
		"Amazing sunset timelapse.",
	}

	kept := dedupeCaptions(captions)
	if len(kept) != 1 {
		t.Fatalf("got %d captions, want 1: %v", len(kept), kept)
	}
	if kept[0] != captions[0] {
		t.Errorf("kept %q, want the earliest caption %q", kept[0], captions[0])
	}
}

func TestDedupeCaptionsKeepsDistinct(t *testing.T) {
	captions := []string{
		"Morning coffee ritual",
		"Sunset over the mountains",
		"Morning coffee ritual!",
	}

	kept := dedupeCaptions(captions)
	if len(kept) != 2 {
		t.Fatalf("got %d captions, want 2: %v", len(kept), kept)
	}
}

func TestCaptionPromptContract(t *testing.T) {
	prompt := captionPrompt("User description: a dog at the beach", "casual", 4)

	for _, want := range []string{
		"4 engaging caption variations",
		"casual tone",
		"different angle",
		"max 150 characters",
		"one per line, without numbering, hashtags or additional text",
		"Video content:\nUser description: a dog at the beach",
		"Do not mention this content description directly",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("caption prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestHashtagPromptContract(t *testing.T) {
	prompt := hashtagPrompt("User description: a dog at the beach", 10)

	for _, want := range []string{
		"10 relevant and trending hashtags",
		"mix of popular and niche tags",
		"must not contain spaces",
		"without the # symbol, one per line",
		"Video content:\nUser description: a dog at the beach",
		"Do not mention this content description directly",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("hashtag prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestPlaceholderLabel(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "user description", in: "User description: a dog at the beach\nVision analysis:\n- a frame", want: "a dog at the beach"},
		{name: "filename fallback", in: "beach day highlights", want: "beach day highlights"},
		{name: "vision bullet", in: "Vision analysis:\n- surfer riding a wave", want: "surfer riding a wave"},
		{name: "empty", in: "", want: "video"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := placeholderLabel(tt.in); got != tt.want {
				t.Errorf("placeholderLabel(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestPlaceholderCaptionsUseDescription(t *testing.T) {
	got := placeholderCaptions("User description: my garden tour\nVision analysis:\n- rows of tulips", 3)
	if len(got) != 3 {
		t.Fatalf("got %d captions, want 3", len(got))
	}
	for _, c := range got {
		if !strings.Contains(c, "my garden tour") {
			t.Errorf("caption %q should mention the description", c)
		}
		if strings.Contains(c, "\n") {
			t.Errorf("caption %q should be a single line", c)
		}
	}
}

func TestParseCaptionLines(t *testing.T) {
	raw := "1. \"First caption\"\n\n- Second caption\n3) Third caption\n"
	got := parseCaptionLines(raw)
	want := []string{"First caption", "Second caption", "Third caption"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestNormalizeHashtags(t *testing.T) {
	raw := []string{"#Sunset", "sunset", "beach life", "##Travel", "  ", "#"}
	got := NormalizeHashtags(raw, 5)

	want := []string{"#Sunset", "#beachlife", "#Travel", "#trending", "#viral"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("hashtag %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestNormalizeHashtagsAllPlaceholders(t *testing.T) {
	got := NormalizeHashtags(nil, 10)
	if len(got) != 10 {
		t.Fatalf("got %d hashtags, want 10: %v", len(got), got)
	}
	for _, tag := range got {
		if !strings.HasPrefix(tag, "#") {
			t.Errorf("hashtag %q missing # prefix", tag)
		}
	}
}

type fakeProvider struct {
	name  string
	resp  string
	err   error
	calls int
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Complete(ctx context.Context, prompt string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.resp, nil
}

func TestGeneratorFallsBackToNextProvider(t *testing.T) {
	broken := &fakeProvider{name: "primary", err: errors.New("rate limited")}
	working := &fakeProvider{name: "fallback", resp: "Caption one\nCaption two\nCaption three"}

	g := NewWithProviders([]Provider{broken, working}, discardLogger())
	opts := DefaultOptions()
	result := g.Generate(context.Background(), "bright video clip", opts)

	if broken.calls == 0 {
		t.Error("primary provider was never tried")
	}
	if working.calls == 0 {
		t.Error("fallback provider was never tried")
	}
	if len(result.Captions) != opts.Variations {
		t.Fatalf("got %d captions, want %d", len(result.Captions), opts.Variations)
	}
	if result.Captions[0] != "Caption one" {
		t.Errorf("first caption = %q, want %q", result.Captions[0], "Caption one")
	}
}

func TestGeneratorPadsThinnedCaptions(t *testing.T) {
	// One distinct caption survives dedupe; the rest are numbered variants
	// of it rather than placeholders.
	single := &fakeProvider{name: "only", resp: "Golden hour at the pier"}

	g := NewWithProviders([]Provider{single}, discardLogger())
	opts := DefaultOptions()
	result := g.Generate(context.Background(), "bright video clip", opts)

	if len(result.Captions) != opts.Variations {
		t.Fatalf("got %d captions, want %d", len(result.Captions), opts.Variations)
	}
	if result.Captions[0] != "Golden hour at the pier" {
		t.Errorf("first caption = %q", result.Captions[0])
	}
	for i, c := range result.Captions[1:] {
		want := fmt.Sprintf("Alternative %d: Golden hour at the pier", i+2)
		if c != want {
			t.Errorf("caption %d = %q, want %q", i+1, c, want)
		}
	}
}

func TestGeneratorPlaceholdersWhenAllFail(t *testing.T) {
	g := NewWithProviders([]Provider{
		&fakeProvider{name: "a", err: errors.New("down")},
		&fakeProvider{name: "b", err: errors.New("down")},
	}, discardLogger())

	opts := DefaultOptions()
	result := g.Generate(context.Background(), "video clip", opts)

	if len(result.Captions) != opts.Variations {
		t.Fatalf("got %d captions, want %d", len(result.Captions), opts.Variations)
	}
	for _, c := range result.Captions {
		if !strings.Contains(c, "video clip") {
			t.Errorf("placeholder caption %q should mention the clip context", c)
		}
	}
	if len(result.Hashtags) != opts.HashtagCount {
		t.Errorf("got %d hashtags, want %d", len(result.Hashtags), opts.HashtagCount)
	}
	for _, platform := range opts.Platforms {
		if _, ok := result.Platforms[platform]; !ok {
			t.Errorf("missing platform text for %s", platform)
		}
	}
}

func TestGeneratorNoProviders(t *testing.T) {
	g := NewWithProviders(nil, discardLogger())
	result := g.Generate(context.Background(), "video clip", DefaultOptions())
	if len(result.Captions) == 0 || len(result.Hashtags) == 0 {
		t.Error("generator with no providers must still return placeholder text")
	}
}

func TestAdaptForPlatform(t *testing.T) {
	long := strings.Repeat("a", 400)
	tags := NormalizeHashtags(nil, 10)

	tiktok := adaptForPlatform("tiktok", long, tags)
	if len([]rune(tiktok.Caption)) > 150 {
		t.Errorf("tiktok caption length %d exceeds 150", len([]rune(tiktok.Caption)))
	}
	if !strings.HasSuffix(tiktok.Caption, "...") {
		t.Errorf("truncated caption should end with ellipsis: %q", tiktok.Caption)
	}
	if len(tiktok.Hashtags) > 5 {
		t.Errorf("tiktok hashtags = %d, want at most 5", len(tiktok.Hashtags))
	}

	other := adaptForPlatform("mastodon", long, tags)
	if other.Caption != long || len(other.Hashtags) != len(tags) {
		t.Error("unknown platform should pass text through untouched")
	}
}
