// Package convert renders schedule PDFs to JPEG images for photo
// delivery and AI extraction.
package convert

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Converter renders a PDF into one image per page.
type Converter interface {
	ToImages(pdfPath string) ([]string, error)
	Cleanup(paths []string)
}

// Pdftoppm shells out to poppler's pdftoppm.
type Pdftoppm struct {
	outputDir string
	dpi       int
}

// NewPdftoppm creates a converter writing images under outputDir.
func NewPdftoppm(outputDir string) *Pdftoppm {
	return &Pdftoppm{outputDir: outputDir, dpi: 200}
}

// ToImages renders every page of the PDF as a JPEG and returns the
// image paths in page order.
func (p *Pdftoppm) ToImages(pdfPath string) ([]string, error) {
	if err := os.MkdirAll(p.outputDir, 0o750); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	base := strings.TrimSuffix(filepath.Base(pdfPath), filepath.Ext(pdfPath))
	prefix := filepath.Join(p.outputDir, base)

	cmd := exec.Command("pdftoppm", "-jpeg", "-r", strconv.Itoa(p.dpi), pdfPath, prefix)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("pdftoppm: %w: %s", err, strings.TrimSpace(string(out)))
	}

	paths, err := filepath.Glob(prefix + "-*.jpg")
	if err != nil {
		return nil, fmt.Errorf("glob images: %w", err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("pdftoppm produced no pages for %s", pdfPath)
	}
	sort.Strings(paths)
	return paths, nil
}

// Cleanup removes rendered images, ignoring already-gone files.
func (p *Pdftoppm) Cleanup(paths []string) {
	for _, path := range paths {
		_ = os.Remove(path)
	}
}
