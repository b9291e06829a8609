package scan

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"

	"billing-review-service/internal/objstore"
)

// ErrNotAnImage is returned when the upload cannot be decoded.
var ErrNotAnImage = errors.New("scan is not a decodable image")

// Result holds where a scan and its thumbnail were stored.
type Result struct {
	OriginalKey  string `json:"original_key"`
	OriginalURL  string `json:"original_url"`
	ThumbnailKey string `json:"thumbnail_key"`
	ThumbnailURL string `json:"thumbnail_url"`
}

// Scanner ingests scanned document images: the original plus a fixed-width
// thumbnail are stored through the object store.
type Scanner struct {
	uploader objstore.Uploader
	width    int
}

// New builds a scanner producing thumbnails of the given width.
func New(uploader objstore.Uploader, thumbnailWidth int) *Scanner {
	if thumbnailWidth <= 0 {
		thumbnailWidth = 300
	}
	return &Scanner{uploader: uploader, width: thumbnailWidth}
}

// Ingest stores the original scan and a generated thumbnail for a document.
func (s *Scanner) Ingest(ctx context.Context, documentID string, data []byte, contentType string) (Result, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrNotAnImage, err)
	}

	// Height 0 preserves aspect ratio.
	thumb := imaging.Resize(img, s.width, 0, imaging.Lanczos)

	outputFormat := imaging.JPEG
	ext := "jpg"
	if format == "png" {
		outputFormat = imaging.PNG
		ext = "png"
	}
	buf := &bytes.Buffer{}
	if err := imaging.Encode(buf, thumb, outputFormat, imaging.JPEGQuality(85)); err != nil {
		return Result{}, fmt.Errorf("encode thumbnail: %w", err)
	}

	res := Result{
		OriginalKey:  fmt.Sprintf("scans/%s/original.%s", documentID, ext),
		ThumbnailKey: fmt.Sprintf("scans/%s/thumb.%s", documentID, ext),
	}
	if contentType == "" {
		contentType = "image/" + ext
	}

	res.OriginalURL, err = s.uploader.Upload(ctx, res.OriginalKey, data, contentType)
	if err != nil {
		return Result{}, fmt.Errorf("upload original: %w", err)
	}
	res.ThumbnailURL, err = s.uploader.Upload(ctx, res.ThumbnailKey, buf.Bytes(), mimeForExt(ext))
	if err != nil {
		return Result{}, fmt.Errorf("upload thumbnail: %w", err)
	}
	return res, nil
}

func mimeForExt(ext string) string {
	if ext == "png" {
		return "image/png"
	}
	return "image/jpeg"
}
