package models

import "time"

// SourceVideo describes an ingested source file. It is created by the
// ingest stage and never mutated afterwards.
type SourceVideo struct {
	Path         string  `json:"path"`
	SizeBytes    int64   `json:"size_bytes"`
	Mime         string  `json:"mime"`
	ContainerExt string  `json:"container_ext"`
	DurationS    float64 `json:"duration_s"`
	Width        int     `json:"width"`
	Height       int     `json:"height"`
	HasAudio     bool    `json:"has_audio"`
}

// Clip is a contiguous subrange of the source video written by the segmenter.
type Clip struct {
	Index     int     `json:"index"`
	Path      string  `json:"path"`
	StartS    float64 `json:"start_s"`
	EndS      float64 `json:"end_s"`
	DurationS float64 `json:"duration_s"`
}

// FrameAnalysis holds the local heuristics computed for one sampled frame.
// Brightness and ColorMeans are normalized to [0, 1].
type FrameAnalysis struct {
	Brightness  float64    `json:"brightness"`
	ColorMeans  ColorMeans `json:"color_means"`
	EdgeDensity float64    `json:"edge_density"`
	HasFaces    bool       `json:"has_faces"`
	NumFaces    int        `json:"num_faces"`
	HasText     bool       `json:"has_text"`
	Summary     string     `json:"summary"`
}

type ColorMeans struct {
	R float64 `json:"r"`
	G float64 `json:"g"`
	B float64 `json:"b"`
}

// FrameSample is one frame extracted from a clip together with its analysis.
type FrameSample struct {
	ClipIndex     int           `json:"clip_index"`
	TimestampS    float64       `json:"timestamp_s"`
	PositionLabel string        `json:"position_label"`
	Resolution    string        `json:"resolution"`
	ImageBytes    []byte        `json:"-"`
	Analysis      FrameAnalysis `json:"analysis"`
}

// PlatformText is the caption/hashtag payload emitted per target platform.
type PlatformText struct {
	Caption  string   `json:"caption"`
	Hashtags []string `json:"hashtags"`
}

// GeneratedText is the full text-generation result for one clip.
type GeneratedText struct {
	Captions  []string                `json:"captions"`
	Hashtags  []string                `json:"hashtags"`
	Platforms map[string]PlatformText `json:"platforms"`
	ToneStyle string                  `json:"tone_style"`
}

// PublishResult reports one (clip, platform) publish attempt. Adapters
// return it instead of raising; AuthRequired flags a missing or expired
// credential.
type PublishResult struct {
	Platform     string `json:"platform"`
	Success      bool   `json:"success"`
	PostID       string `json:"post_id,omitempty"`
	PostURL      string `json:"post_url,omitempty"`
	Error        string `json:"error,omitempty"`
	AuthRequired bool   `json:"auth_required"`
}

// Credential is the decrypted per-(user, platform) record held by the vault.
// Expiry is the local session deadline the vault stamps on every store;
// TokenExpiry is the provider-reported access token deadline, when known.
type Credential struct {
	AccessToken  string            `json:"access_token"`
	RefreshToken string            `json:"refresh_token,omitempty"`
	Scopes       []string          `json:"scopes,omitempty"`
	Expiry       time.Time         `json:"expiry"`
	TokenExpiry  time.Time         `json:"token_expiry,omitempty"`
	AccountID    string            `json:"account_id,omitempty"`
	Extra        map[string]string `json:"extra,omitempty"`
}

// UploadReport is the ingest section of results.json.
type UploadReport struct {
	Success bool         `json:"success"`
	Source  *SourceVideo `json:"source,omitempty"`
	Error   string       `json:"error,omitempty"`
}

// SplitReport is the segmentation section of results.json.
type SplitReport struct {
	Success       bool      `json:"success"`
	Clips         []Clip    `json:"clips"`
	SplitPoints   []float64 `json:"split_points"`
	OutputDir     string    `json:"output_dir"`
	TotalDuration float64   `json:"total_duration"`
	Error         string    `json:"error,omitempty"`
}

// ClipResult groups everything produced for one clip.
type ClipResult struct {
	Clip    Clip                     `json:"clip"`
	Context string                   `json:"context"`
	Text    GeneratedText            `json:"text"`
	Publish map[string]PublishResult `json:"publish,omitempty"`
}

// RunResult is the single self-contained record written to results.json.
type RunResult struct {
	Success   bool         `json:"success"`
	Error     string       `json:"error,omitempty"`
	Upload    UploadReport `json:"upload_result"`
	Split     SplitReport  `json:"split_result"`
	Clips     []ClipResult `json:"clip_results"`
	StartedAt time.Time    `json:"started_at"`
	EndedAt   time.Time    `json:"ended_at"`
}
