package textgen

import (
	"fmt"
	"strings"
)

func captionPrompt(clipContext, tone string, n int) string {
	return fmt.Sprintf(
		"Generate %d engaging caption variations for a social media post about the video described below.\n"+
			"Use a %s tone.\n"+
			"Each caption must take a different angle from the others: vary the tone, tie each one to a distinct visual moment, and avoid near-duplicates.\n"+
			"Each caption should be concise (max 150 characters) and designed to maximize engagement.\n"+
			"Provide only the captions, one per line, without numbering, hashtags or additional text.\n"+
			"\n"+
			"Video content:\n%s\n"+
			"\n"+
			"Do not mention this content description directly in the captions.",
		n, tone, clipContext)
}

func hashtagPrompt(clipContext string, n int) string {
	return fmt.Sprintf(
		"Generate %d relevant and trending hashtags for a social media post about the video described below.\n"+
			"Include a mix of popular and niche tags to maximize reach. Hashtags must not contain spaces.\n"+
			"Provide only the hashtags without the # symbol, one per line, without numbering or additional text.\n"+
			"\n"+
			"Video content:\n%s\n"+
			"\n"+
			"Do not mention this content description directly in the hashtags.",
		n, clipContext)
}

// parseCaptionLines splits model output into candidate captions, stripping
// list markers and surrounding quotes the models like to add.
func parseCaptionLines(raw string) []string {
	var out []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*0123456789.) ")
		line = strings.Trim(line, `"'`)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

// parseHashtags splits model output into raw hashtag candidates on any
// whitespace or commas.
func parseHashtags(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ' ' || r == '\n' || r == '\t' || r == ','
	})
	return fields
}

var placeholderCaptionForms = []string{
	"Check out this %s!",
	"You won't want to miss this %s",
	"Watch this %s now",
	"This %s is worth your time",
	"Don't miss this %s",
}

// placeholderCaptions produces deterministic captions used when every
// provider fails.
func placeholderCaptions(clipContext string, n int) []string {
	label := placeholderLabel(clipContext)
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		form := placeholderCaptionForms[i%len(placeholderCaptionForms)]
		out = append(out, fmt.Sprintf(form, label))
	}
	return out
}

// placeholderLabel condenses an assembled clip context into the short phrase
// placeholder captions mention: the user description when present, otherwise
// the first content line (section headers are skipped).
func placeholderLabel(clipContext string) string {
	for _, line := range strings.Split(clipContext, "\n") {
		line = strings.TrimSpace(strings.TrimPrefix(line, "User description:"))
		if line == "" || strings.HasSuffix(line, ":") {
			continue
		}
		return strings.TrimPrefix(line, "- ")
	}
	return "video"
}

var placeholderHashtags = []string{
	"trending", "viral", "fyp", "foryou", "content",
	"video", "share", "follow", "like", "comment",
}

// NormalizeHashtags cleans raw candidates into exactly count well-formed
// hashtags: a leading # and no internal whitespace, deduplicated without
// case sensitivity, padded from a fixed placeholder list when short.
func NormalizeHashtags(raw []string, count int) []string {
	seen := make(map[string]bool)
	out := make([]string, 0, count)

	add := func(tag string) {
		tag = strings.TrimLeft(tag, "#")
		tag = strings.Join(strings.Fields(tag), "")
		if tag == "" {
			return
		}
		key := strings.ToLower(tag)
		if seen[key] || len(out) >= count {
			return
		}
		seen[key] = true
		out = append(out, "#"+tag)
	}

	for _, tag := range raw {
		add(tag)
	}
	for _, tag := range placeholderHashtags {
		if len(out) >= count {
			break
		}
		add(tag)
	}
	return out
}
