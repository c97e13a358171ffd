package autopost

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"path"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// uploadFormats are the image formats the platform accepts as-is, keyed by decoder name.
var uploadFormats = map[string]string{
	"png":  "image/png",
	"jpeg": "image/jpeg",
	"gif":  "image/gif",
}

// NormalizeMedia sniffs the real image format of m. Accepted formats keep their bytes
// and get the content type of what they actually are, whatever the file extension says.
// Any other decodable image is re-encoded as PNG.
func NormalizeMedia(m Media) (Media, error) {
	_, format, err := image.DecodeConfig(bytes.NewReader(m.Data))
	if err != nil {
		return Media{}, fmt.Errorf("unsupported image %s: %w", m.Name, err)
	}
	if contentType, ok := uploadFormats[format]; ok {
		m.ContentType = contentType
		return m, nil
	}

	img, _, err := image.Decode(bytes.NewReader(m.Data))
	if err != nil {
		return Media{}, fmt.Errorf("decode %s image %s: %w", format, m.Name, err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return Media{}, fmt.Errorf("convert %s to png: %w", m.Name, err)
	}
	return Media{
		Name:        strings.TrimSuffix(m.Name, path.Ext(m.Name)) + ".png",
		ContentType: "image/png",
		Data:        buf.Bytes(),
	}, nil
}
