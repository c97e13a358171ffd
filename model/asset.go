package model

import (
	"path"
	"strings"
	"time"
)

// Asset is a media item eligible for publishing. Consumption state lives in the ledger.
type Asset struct {
	ID           string    `json:"id"`
	Location     string    `json:"location,omitempty"`
	Size         int64     `json:"size"`
	DiscoveredAt time.Time `json:"discovered_at"`
}

// Filename is the base name of the asset identifier, extension included.
func (a Asset) Filename() string {
	return path.Base(strings.ReplaceAll(a.ID, "\\", "/"))
}

// Stem is the file name without its extension.
func (a Asset) Stem() string {
	name := a.Filename()
	return strings.TrimSuffix(name, path.Ext(name))
}

// AssetView pairs a candidate with its consumed flag for listings.
type AssetView struct {
	Asset
	Consumed bool `json:"consumed"`
}
