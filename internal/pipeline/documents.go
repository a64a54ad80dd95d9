package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/TobiSchelling/ankiforge/internal/cardgen"
	"github.com/TobiSchelling/ankiforge/internal/config"
	"github.com/TobiSchelling/ankiforge/internal/model"
	"github.com/TobiSchelling/ankiforge/internal/source"
	"github.com/TobiSchelling/ankiforge/internal/trace"
)

var textFormats = map[string]model.SourceFormat{
	".md":       model.FormatMarkdown,
	".markdown": model.FormatMarkdown,
	".txt":      model.FormatText,
}

// LoadDocuments reads already-converted documents. Directories contribute
// their supported files (not recursively). An image becomes a document
// whose content is its side-car .md or .txt file; images without one are
// skipped.
func LoadDocuments(paths []string) ([]model.ConvertedDocument, error) {
	var docs []model.ConvertedDocument
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", p, err)
		}

		files := []string{p}
		if info.IsDir() {
			files, err = listDir(p)
			if err != nil {
				return nil, err
			}
		}

		for _, f := range files {
			doc, ok, err := loadDocument(f)
			if err != nil {
				return nil, err
			}
			if ok {
				docs = append(docs, doc)
			}
		}
	}
	return docs, nil
}

func loadDocument(path string) (model.ConvertedDocument, bool, error) {
	doc := model.ConvertedDocument{
		SourcePath: path,
		FileName:   filepath.Base(path),
		TraceID:    trace.NewID(),
	}

	if cardgen.IsImagePath(path) {
		sidecar := findSidecar(path)
		if sidecar == "" {
			slog.Warn("skipping image without side-car text", "file", doc.FileName)
			return doc, false, nil
		}
		data, err := os.ReadFile(sidecar)
		if err != nil {
			return doc, false, fmt.Errorf("reading %s: %w", sidecar, err)
		}
		doc.Content = string(data)
		doc.SourceFormat = model.FormatImage
		return doc, true, nil
	}

	format, ok := textFormats[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return doc, false, fmt.Errorf("unsupported file type %q (convert it to markdown first)", doc.FileName)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return doc, false, fmt.Errorf("reading %s: %w", path, err)
	}
	doc.Content = string(data)
	doc.SourceFormat = format
	return doc, true, nil
}

func findSidecar(imagePath string) string {
	stem := strings.TrimSuffix(imagePath, filepath.Ext(imagePath))
	for _, ext := range []string{".md", ".txt"} {
		if _, err := os.Stat(stem + ext); err == nil {
			return stem + ext
		}
	}
	return ""
}

// listDir returns the supported files in dir, sorted, leaving out text files
// that are side-cars of an image in the same directory.
func listDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}

	imageStems := map[string]bool{}
	for _, e := range entries {
		if !e.IsDir() && cardgen.IsImagePath(e.Name()) {
			imageStems[strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))] = true
		}
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		ext := strings.ToLower(filepath.Ext(name))
		if _, ok := textFormats[ext]; ok {
			if imageStems[strings.TrimSuffix(name, filepath.Ext(name))] {
				continue
			}
			files = append(files, filepath.Join(dir, name))
		} else if cardgen.IsImagePath(name) {
			files = append(files, filepath.Join(dir, name))
		}
	}
	sort.Strings(files)
	return files, nil
}

// LoadInputs loads local paths and article URLs in argument order, then the
// entries of every feed.
func LoadInputs(ctx context.Context, inputs, feeds []string, web *source.Source) ([]model.ConvertedDocument, error) {
	var docs []model.ConvertedDocument
	for _, in := range inputs {
		if source.IsURL(in) {
			doc, err := web.FetchDocument(ctx, in)
			if err != nil {
				return nil, err
			}
			docs = append(docs, doc)
			continue
		}
		local, err := LoadDocuments([]string{in})
		if err != nil {
			return nil, err
		}
		docs = append(docs, local...)
	}

	for _, feed := range feeds {
		entries, err := web.FeedDocuments(ctx, feed)
		if err != nil {
			return nil, err
		}
		docs = append(docs, entries...)
	}
	return docs, nil
}

// NewSource builds the web source described by cfg.
func NewSource(cfg config.Web) *source.Source {
	return source.New(source.Options{
		Timeout:     cfg.Timeout(),
		MaxPerFeed:  cfg.MaxPerFeed,
		DaysBack:    cfg.DaysBack,
		FullContent: cfg.FullContent,
	})
}
