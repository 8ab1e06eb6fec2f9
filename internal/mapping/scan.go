package mapping

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	tderrors "github.com/standardbeagle/tdmaps/internal/errors"
)

// File is one successfully parsed document found by Scan
type File struct {
	Name string // Base name inside the mapping directory
	Path string
	Doc  *Document
	Hash uint64
}

// ScanResult lists the parsed documents in file-name order plus the files
// that were skipped because they failed to read or parse
type ScanResult struct {
	Files   []File
	Skipped []error
}

// Find returns the file with the given base name
func (r *ScanResult) Find(name string) (File, bool) {
	for _, f := range r.Files {
		if f.Name == name {
			return f, true
		}
	}
	return File{}, false
}

// Scan parses every *.json file directly inside dir. An error is returned
// only when dir itself cannot be read; broken documents end up in Skipped.
func Scan(ctx context.Context, dir string) (*ScanResult, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, tderrors.NewFileError("read", dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && IsMappingFile(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	files := make([]*File, len(names))
	skipped := make([]error, len(names))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i, name := range names {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			path := filepath.Join(dir, name)
			data, err := os.ReadFile(path)
			if err != nil {
				skipped[i] = tderrors.NewFileError("read", path, err)
				return nil
			}
			doc, err := Parse(data)
			if err != nil {
				skipped[i] = tderrors.NewParseError(path, err)
				return nil
			}
			files[i] = &File{Name: name, Path: path, Doc: doc, Hash: Hash(data)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &ScanResult{}
	for i := range names {
		if files[i] != nil {
			result.Files = append(result.Files, *files[i])
		}
		if skipped[i] != nil {
			result.Skipped = append(result.Skipped, skipped[i])
		}
	}
	return result, nil
}
