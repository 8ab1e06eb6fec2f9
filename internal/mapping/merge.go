package mapping

// Merged is the combined view of every document in the mapping directory
type Merged struct {
	Mappings Mappings

	// Globals adopted from the documents; nil when no document sets them
	BuiltinMappingsEnabled *bool
	Language               *string

	// Sources lists contributing file names in merge order
	Sources []string
}

// EmptyMappings returns six empty maps
func EmptyMappings() Mappings {
	return Mappings{
		Files:             NewOrderedMap(),
		Packages:          NewOrderedMap(),
		FileMatch:         NewOrderedMap(),
		PackageMatch:      NewOrderedMap(),
		FilesTextColor:    NewOrderedMap(),
		PackagesTextColor: NewOrderedMap(),
	}
}

// Merge folds documents into one view. The local document is applied first
// and every other document only adds keys that are still absent, so no
// overlay can replace a key the local document defines. Overlays are taken
// in the order given (Scan yields file-name order); among overlays the first
// one to define a key wins.
//
// The local document's builtinMappingsEnabled and language win. Without a
// local value, the first overlay carrying one is used.
func Merge(files []File, localName string) *Merged {
	out := &Merged{Mappings: EmptyMappings()}

	for _, f := range files {
		if f.Name == localName {
			out.Mappings.putAll(f.Doc.Mappings)
			out.BuiltinMappingsEnabled = f.Doc.BuiltinMappingsEnabled
			out.Language = f.Doc.Language
			out.Sources = append(out.Sources, f.Name)
			break
		}
	}

	for _, f := range files {
		if f.Name == localName {
			continue
		}
		out.Mappings.putAllAbsent(f.Doc.Mappings)
		if out.BuiltinMappingsEnabled == nil {
			out.BuiltinMappingsEnabled = f.Doc.BuiltinMappingsEnabled
		}
		if out.Language == nil {
			out.Language = f.Doc.Language
		}
		out.Sources = append(out.Sources, f.Name)
	}
	return out
}

func (m Mappings) putAll(src Mappings) {
	m.Files.PutAll(src.Files)
	m.Packages.PutAll(src.Packages)
	m.FileMatch.PutAll(src.FileMatch)
	m.PackageMatch.PutAll(src.PackageMatch)
	m.FilesTextColor.PutAll(src.FilesTextColor)
	m.PackagesTextColor.PutAll(src.PackagesTextColor)
}

func (m Mappings) putAllAbsent(src Mappings) {
	m.Files.PutAllAbsent(src.Files)
	m.Packages.PutAllAbsent(src.Packages)
	m.FileMatch.PutAllAbsent(src.FileMatch)
	m.PackageMatch.PutAllAbsent(src.PackageMatch)
	m.FilesTextColor.PutAllAbsent(src.FilesTextColor)
	m.PackagesTextColor.PutAllAbsent(src.PackagesTextColor)
}
