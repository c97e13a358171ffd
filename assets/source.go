/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package assets lists the media a cycle may publish and opens their content.
// Sources are queried fresh on every call; nothing is cached between cycles.
package assets

import (
	"context"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/autopost/autopost/config"
	"github.com/autopost/autopost/model"
)

// SupportedExtensions are the file suffixes treated as publishable images.
var SupportedExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".gif":  {},
	".webp": {},
}

// Source provides candidate assets and their binary content.
type Source interface {
	ListCandidates(ctx context.Context) ([]model.Asset, error)
	Open(ctx context.Context, asset model.Asset) (io.ReadCloser, error)
}

// IsSupported reports whether name carries one of SupportedExtensions, ignoring case.
func IsSupported(name string) bool {
	_, ok := SupportedExtensions[strings.ToLower(path.Ext(name))]
	return ok
}

// ContentType guesses the media type from the asset file name.
func ContentType(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}

func sortByID(candidates []model.Asset) {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].ID < candidates[j].ID
	})
}

// NewSource picks the S3 source when a bucket is configured and the local directory otherwise.
func NewSource(ctx context.Context, cnf *config.Configuration) (Source, error) {
	if cnf.S3.Bucket != "" {
		return NewS3Source(ctx, cnf.S3)
	}
	return NewDirSource(cnf.ImageDirectory), nil
}
