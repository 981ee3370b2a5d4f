// Package collection supplies document paths and document text to the
// indexer, and query text to the searcher.
package collection

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	apperrors "github.com/Adithya-Monish-Kumar-K/retrieval-engine/pkg/errors"
)

// List returns the document paths of a collection. A directory is walked
// recursively, skipping hidden entries, and paths are sorted. A regular
// file is read as a manifest with one path per line; relative entries are
// resolved against the manifest's directory.
func List(location string) ([]string, error) {
	info, err := os.Stat(location)
	if err != nil {
		return nil, fmt.Errorf("opening collection %s: %w", location, err)
	}
	if info.IsDir() {
		return walk(location)
	}
	return readManifest(location)
}

func walk(root string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking collection %s: %w", root, err)
	}
	sort.Strings(paths)
	return paths, nil
}

func readManifest(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening manifest %s: %w", path, err)
	}
	defer f.Close()

	base := filepath.Dir(path)
	var paths []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !filepath.IsAbs(line) {
			line = filepath.Join(base, line)
		}
		paths = append(paths, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading manifest %s: %w", path, err)
	}
	return paths, nil
}

// FileSource reads documents from the local file system. HTML documents are
// reduced to their visible text.
type FileSource struct{}

// ReadText returns the text of the document at path. Failures are wrapped
// as DocumentUnreadable.
func (FileSource) ReadText(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	f, err := os.Open(path)
	if err != nil {
		return "", apperrors.NewDocumentError(path, err)
	}
	defer f.Close()

	if isHTML(path) {
		text, err := htmlText(f)
		if err != nil {
			return "", apperrors.NewDocumentError(path, err)
		}
		return text, nil
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return "", apperrors.NewDocumentError(path, err)
	}
	return string(data), nil
}

func isHTML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm", ".xhtml":
		return true
	}
	return false
}

func htmlText(r io.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", fmt.Errorf("parsing HTML: %w", err)
	}
	doc.Find("script, style, noscript, template").Remove()
	var parts []string
	if title := strings.TrimSpace(doc.Find("head title").Text()); title != "" {
		parts = append(parts, title)
	}
	body := doc.Find("body")
	if body.Length() == 0 {
		body = doc.Selection
	}
	parts = append(parts, body.Text())
	return strings.Join(parts, "\n"), nil
}

// MapSource serves documents from memory, keyed by path.
type MapSource map[string]string

func (m MapSource) ReadText(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	text, ok := m[path]
	if !ok {
		return "", apperrors.NewDocumentError(path, fs.ErrNotExist)
	}
	return text, nil
}

// Paths returns the keys of m in sorted order.
func (m MapSource) Paths() []string {
	paths := make([]string, 0, len(m))
	for p := range m {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
