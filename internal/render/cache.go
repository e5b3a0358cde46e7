package render

import (
	"errors"
	"fmt"
	"image/png"
	"os"
	"path/filepath"
)

// Cache maps (document, page, dpi) to a deterministic image path under Dir.
type Cache struct {
	Dir string
}

// Key identifies one rendered page.
type Key struct {
	DocumentID string
	Page       int
	DPI        int
}

// Path returns <dir>/<doc_id>/<dpi>/page_<page>.png.
func (c Cache) Path(k Key) string {
	return filepath.Join(c.Dir, k.DocumentID, fmt.Sprintf("%d", k.DPI), fmt.Sprintf("page_%04d.png", k.Page))
}

// Lookup reports whether a usable image is cached for k. A file that exists but
// does not decode as a PNG is reported through errInconsistent.
func (c Cache) Lookup(k Key) (string, bool, error) {
	path := c.Path(k)
	st, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return path, false, nil
	}
	if err != nil {
		return path, false, err
	}
	if st.IsDir() || st.Size() == 0 {
		return path, false, errInconsistent
	}
	if err := checkPNG(path); err != nil {
		return path, false, errInconsistent
	}
	return path, true, nil
}

var errInconsistent = errors.New("cached image unreadable")

func checkPNG(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	cfg, err := png.DecodeConfig(f)
	if err != nil {
		return err
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return fmt.Errorf("empty image %dx%d", cfg.Width, cfg.Height)
	}
	return nil
}

// PageSize returns the pixel dimensions of a cached image.
func PageSize(path string) (width, height int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()
	cfg, err := png.DecodeConfig(f)
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}
