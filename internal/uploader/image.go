package uploader

import (
	"bytes"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"

	"github.com/weiawesome/flow-market/internal/domain"
)

// Formats imaging can decode; these are checked for truncation as well.
var decodable = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/bmp":  true,
	"image/tiff": true,
}

// CheckImage rejects empty and oversized files and anything whose content
// does not sniff as a raster image. maxSize <= 0 disables the size limit.
func CheckImage(file *domain.UploadFile, maxSize int64) error {
	if len(file.Data) == 0 {
		return domain.Invalid("empty file")
	}
	if maxSize > 0 && int64(len(file.Data)) > maxSize {
		return domain.Invalid("file too large")
	}

	mt := mimetype.Detect(file.Data).String()
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = mt[:i]
	}
	// SVG is markup and would be served from our own origin.
	if !strings.HasPrefix(mt, "image/") || mt == "image/svg+xml" {
		return domain.Invalid("file is not a supported image")
	}
	if decodable[mt] {
		if _, err := imaging.Decode(bytes.NewReader(file.Data)); err != nil {
			return domain.Invalid("file is not a supported image")
		}
	}
	return nil
}
