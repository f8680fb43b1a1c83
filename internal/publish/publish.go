// Package publish writes a tab's records as a tree of markdown files.
package publish

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"atlvs-cli/internal/binding"
	"atlvs-cli/internal/model"

	"github.com/natefinch/atomic"
)

type WriteOptions struct {
	Overwrite bool
}

type WriteResult struct {
	Written []string `json:"written"`
}

// ErrExists is returned instead of replacing a file without Overwrite.
var ErrExists = errors.New("file exists (use --overwrite)")

// WriteTab writes <toDir>/<module>/<tab>/index.md and one page per record
// under items/. It stops at the first error.
func WriteTab(b binding.Binding, items []model.DataItem, toDir string, opt WriteOptions) (WriteResult, error) {
	toDir = strings.TrimSpace(toDir)
	if toDir == "" {
		return WriteResult{}, errors.New("missing --to")
	}
	tabDir := filepath.Join(filepath.Clean(toDir), b.Entry.Module, b.Entry.Tab)
	itemsDir := filepath.Join(tabDir, "items")
	if err := os.MkdirAll(itemsDir, 0o755); err != nil {
		return WriteResult{}, err
	}

	indexPath := filepath.Join(tabDir, "index.md")
	if err := writeFile(indexPath, []byte(RenderTabIndexMarkdown(b.Entry, b.Handle, items)), opt.Overwrite); err != nil {
		return WriteResult{}, err
	}
	written := []string{indexPath}
	for _, it := range items {
		if !safeName(it.ID) {
			return WriteResult{Written: written}, fmt.Errorf("record id %q is not a safe file name", it.ID)
		}
		md, err := RenderItemMarkdown(b.Entry, it)
		if err != nil {
			return WriteResult{Written: written}, err
		}
		p := filepath.Join(itemsDir, it.ID+".md")
		if err := writeFile(p, []byte(md), opt.Overwrite); err != nil {
			return WriteResult{Written: written}, err
		}
		written = append(written, p)
	}
	return WriteResult{Written: written}, nil
}

func safeName(id string) bool {
	return id != "" && id != "." && id != ".." && !strings.ContainsAny(id, `/\`)
}

func writeFile(path string, b []byte, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%w: %s", ErrExists, path)
		}
	}
	return atomic.WriteFile(path, bytes.NewReader(b))
}
