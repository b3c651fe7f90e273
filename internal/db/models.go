package db

import (
	"github.com/jackc/pgx/v5/pgtype"
)

type Asset struct {
	Name           string             `json:"name"`
	Path           string             `json:"path"`
	ImageUrl       string             `json:"image_url"`
	HasStems       bool               `json:"has_stems"`
	Stems          []string           `json:"stems"`
	StemFolder     string             `json:"stem_folder"`
	SourceUrl      string             `json:"source_url"`
	Title          string             `json:"title"`
	DerivedFrom    string             `json:"derived_from"`
	PitchSemitones *float64           `json:"pitch_semitones"`
	CreatedAt      pgtype.Timestamptz `json:"created_at"`
	UpdatedAt      pgtype.Timestamptz `json:"updated_at"`
}

type AssetGroup struct {
	ID        pgtype.UUID        `json:"id"`
	Name      string             `json:"name"`
	Files     []string           `json:"files"`
	CreatedAt pgtype.Timestamptz `json:"created_at"`
	UpdatedAt pgtype.Timestamptz `json:"updated_at"`
}
