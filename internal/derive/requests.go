package derive

import (
	"time"

	"thirdcoast.systems/sonicstream/internal/asset"
	"thirdcoast.systems/sonicstream/pkg/chords"
)

type IngestRequest struct {
	URL string `validate:"required,max=2048"`
}

type IngestResult struct {
	Record *asset.Record
	// DownloadURL is a signed link to the published audio. It is empty when
	// signing failed after the asset was recorded.
	DownloadURL string
}

type SeparateRequest struct {
	Name string `validate:"required,max=255"`
	// Model is a spleeter configuration; empty selects the default.
	Model string `validate:"omitempty,max=64"`
}

type SeparateResult struct {
	Record *asset.Record
	Folder string
	Stems  []string
}

type PitchRequest struct {
	Name      string  `validate:"required,max=255"`
	Semitones float64 `validate:"gte=-24,lte=24"`
}

type PitchResult struct {
	Record *asset.Record
	Scale  float64
}

type ChordsRequest struct {
	Name string `validate:"required,max=255"`
}

type ChordsResult struct {
	Name     string
	Key      string
	Document chords.Document
}

type DeleteResult struct {
	Name          string
	GroupsUpdated int
}

// SourceInfo is the metadata probe result for a remote URL.
type SourceInfo struct {
	URL       string        `json:"url"`
	Domain    string        `json:"domain"`
	Title     string        `json:"title"`
	Thumbnail string        `json:"thumbnail,omitempty"`
	Duration  time.Duration `json:"duration"`
	Uploader  string        `json:"uploader,omitempty"`
}
