// Package evidence takes the screenshot of the settled page and keeps it in
// a blob store. The store returns the path that the audit record carries.
package evidence

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

var (
	ErrEmptyCapture = errors.New("evidence: empty capture")
	ErrNotPNG       = errors.New("evidence: data is not a PNG image")
)

var pngMagic = []byte("\x89PNG\r\n\x1a\n")

// BlobStore keeps evidence bytes and hands back an opaque path.
type BlobStore interface {
	Save(ctx context.Context, data []byte) (string, error)
	Load(ctx context.Context, path string) ([]byte, error)
}

// Screenshot captures page as PNG: the whole document when fullPage is set,
// the viewport otherwise.
func Screenshot(ctx context.Context, page *rod.Page, fullPage bool) ([]byte, error) {
	data, err := page.Context(ctx).Screenshot(fullPage, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return nil, fmt.Errorf("evidence: screenshot: %w", err)
	}
	if err := CheckPNG(data); err != nil {
		return nil, err
	}
	return data, nil
}

// CheckPNG rejects empty or non-PNG payloads.
func CheckPNG(data []byte) error {
	if len(data) == 0 {
		return ErrEmptyCapture
	}
	if !bytes.HasPrefix(data, pngMagic) {
		return ErrNotPNG
	}
	return nil
}
