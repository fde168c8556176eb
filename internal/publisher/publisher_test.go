package publisher

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/maheshrc27/clippost/internal/models"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeCreds struct {
	creds map[string]*models.Credential
}

func (f *fakeCreds) GetCredentials(userID, platform string) (*models.Credential, error) {
	cred, ok := f.creds[platform]
	if !ok {
		return nil, errors.New("not found")
	}
	return cred, nil
}

type fakeAdapter struct {
	platform string
	result   models.PublishResult
	panics   bool
	calls    int
}

func (f *fakeAdapter) Platform() string { return f.platform }

func (f *fakeAdapter) Publish(ctx context.Context, cred *models.Credential, req Request) models.PublishResult {
	f.calls++
	if f.panics {
		panic("adapter exploded")
	}
	return f.result
}

func validCred() *models.Credential {
	return &models.Credential{
		AccessToken: "token",
		Expiry:      time.Now().Add(time.Hour),
	}
}

func TestPublishAllFansOut(t *testing.T) {
	a := &fakeAdapter{platform: "tiktok", result: models.PublishResult{Platform: "tiktok", Success: true, PostID: "1"}}
	b := &fakeAdapter{platform: "youtube", result: models.PublishResult{Platform: "youtube", Success: true, PostID: "2"}}

	p := NewWithAdapters([]Adapter{a, b}, &fakeCreds{creds: map[string]*models.Credential{
		"tiktok":  validCred(),
		"youtube": validCred(),
	}}, discardLogger())

	results := p.PublishAll(context.Background(), Request{UserID: "u1", VideoPath: "clip.mp4"}, []string{"tiktok", "youtube"})

	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if !results["tiktok"].Success || !results["youtube"].Success {
		t.Errorf("expected both platforms to succeed: %+v", results)
	}
	if a.calls != 1 || b.calls != 1 {
		t.Errorf("adapter call counts = %d, %d, want 1 each", a.calls, b.calls)
	}
}

func TestPublishAllRecoversPanic(t *testing.T) {
	good := &fakeAdapter{platform: "tiktok", result: models.PublishResult{Platform: "tiktok", Success: true}}
	bad := &fakeAdapter{platform: "youtube", panics: true}

	p := NewWithAdapters([]Adapter{good, bad}, &fakeCreds{creds: map[string]*models.Credential{
		"tiktok":  validCred(),
		"youtube": validCred(),
	}}, discardLogger())

	results := p.PublishAll(context.Background(), Request{UserID: "u1"}, []string{"tiktok", "youtube"})

	if !results["tiktok"].Success {
		t.Error("healthy platform should not be affected by a panicking one")
	}
	yt := results["youtube"]
	if yt.Success {
		t.Error("panicking adapter must report failure")
	}
	if !strings.Contains(yt.Error, "adapter exploded") {
		t.Errorf("panic message missing from error: %q", yt.Error)
	}
}

func TestPublishAllMissingCredentials(t *testing.T) {
	a := &fakeAdapter{platform: "tiktok", result: models.PublishResult{Platform: "tiktok", Success: true}}
	p := NewWithAdapters([]Adapter{a}, &fakeCreds{}, discardLogger())

	results := p.PublishAll(context.Background(), Request{UserID: "u1"}, []string{"tiktok"})

	r := results["tiktok"]
	if r.Success {
		t.Error("publish without credentials must fail")
	}
	if !r.AuthRequired {
		t.Error("missing credentials must set AuthRequired")
	}
	if a.calls != 0 {
		t.Error("adapter must not be called without credentials")
	}
}

func TestPublishAllExpiredCredentials(t *testing.T) {
	a := &fakeAdapter{platform: "tiktok"}
	p := NewWithAdapters([]Adapter{a}, &fakeCreds{creds: map[string]*models.Credential{
		"tiktok": {AccessToken: "token", Expiry: time.Now().Add(-time.Hour)},
	}}, discardLogger())

	r := p.PublishAll(context.Background(), Request{UserID: "u1"}, []string{"tiktok"})["tiktok"]
	if r.Success || !r.AuthRequired {
		t.Errorf("expired credential should yield AuthRequired failure, got %+v", r)
	}
	if a.calls != 0 {
		t.Error("adapter must not be called with expired credentials")
	}
}

func TestPublishAllUnknownPlatform(t *testing.T) {
	p := NewWithAdapters(nil, &fakeCreds{}, discardLogger())
	r := p.PublishAll(context.Background(), Request{UserID: "u1"}, []string{"myspace"})["myspace"]
	if r.Success {
		t.Error("unknown platform must fail")
	}
	if !strings.Contains(r.Error, "myspace") {
		t.Errorf("error should name the platform: %q", r.Error)
	}
}

func TestComposeCaption(t *testing.T) {
	got := ComposeCaption("Sunset timelapse", []string{"#sunset", "#timelapse"})
	want := "Sunset timelapse\n\n#sunset #timelapse"
	if got != want {
		t.Errorf("ComposeCaption = %q, want %q", got, want)
	}

	if got := ComposeCaption("No tags", nil); got != "No tags" {
		t.Errorf("caption without hashtags should pass through, got %q", got)
	}
}

func TestShortsTitle(t *testing.T) {
	if got := shortsTitle("A lovely morning\nsecond line ignored"); got != "A lovely morning #Shorts" {
		t.Errorf("shortsTitle = %q", got)
	}

	long := strings.Repeat("x", 200)
	got := shortsTitle(long)
	if len([]rune(got)) > 100 {
		t.Errorf("title length %d exceeds 100", len([]rune(got)))
	}
	if !strings.HasSuffix(got, "#Shorts") {
		t.Errorf("title %q missing #Shorts suffix", got)
	}

	if got := shortsTitle("Already tagged #shorts"); strings.Count(strings.ToLower(got), "#shorts") != 1 {
		t.Errorf("tag should not be duplicated: %q", got)
	}
}

func TestEnsureShortsTag(t *testing.T) {
	if got := ensureShortsTag("caption"); !strings.Contains(got, "#Shorts") {
		t.Errorf("missing tag not added: %q", got)
	}
	if got := ensureShortsTag("caption #Shorts"); strings.Count(got, "#Shorts") != 1 {
		t.Errorf("existing tag duplicated: %q", got)
	}
}

func TestRegisteredPlatforms(t *testing.T) {
	names := RegisteredPlatforms()
	want := map[string]bool{"tiktok": false, "instagram": false, "youtube": false}
	for _, n := range names {
		if _, ok := want[n]; ok {
			want[n] = true
		}
	}
	for name, seen := range want {
		if !seen {
			t.Errorf("platform %s not registered", name)
		}
	}
}
