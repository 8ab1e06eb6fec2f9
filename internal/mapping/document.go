// Package mapping defines the mapping document persisted under the project's
// mapping directory, and the rules for scanning, merging and migrating those
// documents.
package mapping

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Defaults written into the local document
const (
	LocalName        = "project local mappings"
	LocalVersion     = "1.0.0"
	LocalDescription = "Current project path and file mapping configuration"
	LocalAuthor      = "Local"
)

// DefaultColor is the tree's default annotation color; it is never persisted
const DefaultColor = "#BBBBBB"

// ErrInvalidColor is returned for text colors not written as #RRGGBB
var ErrInvalidColor = errors.New("color must have the form #RRGGBB")

var colorPattern = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

// CheckColor validates a text color. Empty means the default color.
func CheckColor(color string) error {
	if c := strings.TrimSpace(color); c == "" || colorPattern.MatchString(c) {
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidColor, color)
}

// ErrEmptyDocument is returned when the content is blank or the literal null
var ErrEmptyDocument = errors.New("empty mapping document")

// Document is one persisted mapping file
type Document struct {
	Name                   string   `json:"name,omitempty"`
	Version                string   `json:"version,omitempty"`
	Description            string   `json:"description,omitempty"`
	Author                 string   `json:"author,omitempty"`
	BuiltinMappingsEnabled *bool    `json:"builtinMappingsEnabled,omitempty"`
	Language               *string  `json:"language,omitempty"`
	Mappings               Mappings `json:"mappings"`
}

// Mappings holds the six maps of a document. Absent maps decode as nil.
type Mappings struct {
	Files             *OrderedMap `json:"files,omitempty"`
	Packages          *OrderedMap `json:"packages,omitempty"`
	FileMatch         *OrderedMap `json:"fileMatch,omitempty"`
	PackageMatch      *OrderedMap `json:"packageMatch,omitempty"`
	FilesTextColor    *OrderedMap `json:"filesTextColor,omitempty"`
	PackagesTextColor *OrderedMap `json:"packagesTextColor,omitempty"`
}

// Empty reports whether the four annotation maps carry nothing
func (m Mappings) Empty() bool {
	return m.Files.Len() == 0 && m.Packages.Len() == 0 && m.FileMatch.Len() == 0 && m.PackageMatch.Len() == 0
}

// NewLocal returns the local document for the given state. Every map is
// emitted, empty or not.
func NewLocal(builtinEnabled bool, language string, m Mappings) *Document {
	return &Document{
		Name:                   LocalName,
		Version:                LocalVersion,
		Description:            LocalDescription,
		Author:                 LocalAuthor,
		BuiltinMappingsEnabled: &builtinEnabled,
		Language:               &language,
		Mappings: Mappings{
			Files:             m.Files.Clone(),
			Packages:          m.Packages.Clone(),
			FileMatch:         m.FileMatch.Clone(),
			PackageMatch:      m.PackageMatch.Clone(),
			FilesTextColor:    m.FilesTextColor.Clone(),
			PackagesTextColor: m.PackagesTextColor.Clone(),
		},
	}
}

// Parse decodes a mapping document
func Parse(data []byte) (*Document, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, ErrEmptyDocument
	}
	var doc Document
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// ParseString decodes a mapping document held in editor text
func ParseString(text string) (*Document, error) {
	return Parse([]byte(text))
}

// Marshal encodes the document as indented JSON with field names exactly as declared
func (d *Document) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(d); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Pretty re-indents arbitrary JSON. Content that is not JSON is returned as is.
func Pretty(data []byte) []byte {
	var out bytes.Buffer
	if err := json.Indent(&out, bytes.TrimSpace(data), "", "  "); err != nil {
		return data
	}
	return out.Bytes()
}

// Hash returns the content hash used to recognise our own writes
func Hash(data []byte) uint64 {
	return xxhash.Sum64(data)
}

// IsMappingFile reports whether name is a mapping document file name
func IsMappingFile(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), ".json")
}
