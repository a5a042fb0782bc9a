// Package loader reads source documents from a directory ahead of
// ingestion. File contents are treated as UTF-8 text; anything the loading
// step cannot read is skipped with a warning rather than failing the run.
package loader

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"ragchat/internal/domain"
)

const maxConcurrentReads = 8

// DirectoryLoader loads every regular, non-hidden file under a directory.
type DirectoryLoader struct {
	log *slog.Logger
}

func NewDirectoryLoader(log *slog.Logger) *DirectoryLoader {
	if log == nil {
		log = slog.Default()
	}
	return &DirectoryLoader{log: log}
}

// Load reads all files under dir concurrently and returns the documents
// sorted by path, so downstream chunk ids are reproducible run to run.
// A missing directory is an error; an unreadable file is not.
func (l *DirectoryLoader) Load(ctx context.Context, dir string) ([]domain.Document, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("load documents from %q: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("load documents: %q is not a directory", dir)
	}

	var paths []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if strings.HasPrefix(name, ".") {
			if d.IsDir() && path != dir {
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
		return nil, fmt.Errorf("load documents from %q: %w", dir, err)
	}
	sort.Strings(paths)

	docs := make([]domain.Document, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentReads)
	for i, p := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			data, err := os.ReadFile(p)
			if err != nil {
				l.log.Warn("skipping unreadable file", "path", p, "error", err)
				return nil
			}
			docs[i] = domain.Document{ID: hashString(p), Source: p, Text: string(data)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load documents from %q: %w", dir, err)
	}

	loaded := docs[:0]
	for _, d := range docs {
		if d.ID != "" {
			loaded = append(loaded, d)
		}
	}
	return loaded, nil
}

func hashString(s string) string {
	h := sha1.Sum([]byte(s))
	return hex.EncodeToString(h[:8])
}
