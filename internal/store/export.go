package store

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/standardbeagle/tdmaps/internal/i18n"
	"github.com/standardbeagle/tdmaps/internal/mapping"
)

// exportDocument keeps files first and drops empty optional maps
type exportDocument struct {
	Name        string         `json:"name"`
	Version     string         `json:"version"`
	Description string         `json:"description"`
	Mappings    exportMappings `json:"mappings"`
}

type exportMappings struct {
	Files        *mapping.OrderedMap `json:"files"`
	Packages     *mapping.OrderedMap `json:"packages,omitempty"`
	FileMatch    *mapping.OrderedMap `json:"fileMatch,omitempty"`
	PackageMatch *mapping.OrderedMap `json:"packageMatch,omitempty"`
}

func nilIfEmpty(m *mapping.OrderedMap) *mapping.OrderedMap {
	if m.Len() == 0 {
		return nil
	}
	return m
}

// ExportToMappingFormat renders the annotations as a shareable library document
func (s *Store) ExportToMappingFormat() (string, error) {
	s.mu.RLock()
	lang := s.language
	doc := exportDocument{
		Name:        i18n.ExportName.In(lang),
		Version:     mapping.LocalVersion,
		Description: i18n.ExportDescription.In(lang),
		Mappings: exportMappings{
			Files:        s.files.Clone(),
			Packages:     nilIfEmpty(s.packages.Clone()),
			FileMatch:    nilIfEmpty(s.fileMatch.Clone()),
			PackageMatch: nilIfEmpty(s.packageMatch.Clone()),
		},
	}
	s.mu.RUnlock()

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return "", err
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

// ImportFromMappingFormat merges the four annotation maps of a document into
// the store, overwriting existing keys. It reports whether anything was
// imported; the store saves only in that case.
func (s *Store) ImportFromMappingFormat(content string) (bool, error) {
	doc, err := mapping.ParseString(content)
	if err != nil {
		return false, fmt.Errorf("import mapping document: %w", err)
	}

	s.mu.Lock()
	imported := false
	if doc.Mappings.Files.Len() > 0 {
		s.files.PutAll(normalizedKeys(doc.Mappings.Files))
		imported = true
	}
	if doc.Mappings.Packages.Len() > 0 {
		s.packages.PutAll(normalizedKeys(doc.Mappings.Packages))
		imported = true
	}
	if doc.Mappings.FileMatch.Len() > 0 {
		s.fileMatch.PutAll(doc.Mappings.FileMatch)
		imported = true
	}
	if doc.Mappings.PackageMatch.Len() > 0 {
		s.packageMatch.PutAll(doc.Mappings.PackageMatch)
		imported = true
	}
	if doc.BuiltinMappingsEnabled != nil {
		s.builtinEnabled = *doc.BuiltinMappingsEnabled
		imported = true
	}
	s.mu.Unlock()

	if !imported {
		return false, nil
	}
	return true, s.save()
}
