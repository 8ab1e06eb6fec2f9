package mapping

import (
	"strings"
)

// Legacy is the content recovered from the old single-file XML store
type Legacy struct {
	Mappings               Mappings
	BuiltinMappingsEnabled *bool
}

var xmlUnescaper = strings.NewReplacer(
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", "\"",
	"&apos;", "'",
)

// ParseLegacyXML extracts the four annotation sections from the old XML
// format. It is a substring scan over
//
//	<entry key="files">
//	  <entry key="src/App.java" value="entry point" />
//	</entry>
//
// rather than a real XML parse; anything it cannot read is ignored.
func ParseLegacyXML(content string) *Legacy {
	m := EmptyMappings()
	parseLegacySection(content, "files", m.Files)
	parseLegacySection(content, "packages", m.Packages)
	parseLegacySection(content, "fileMatch", m.FileMatch)
	parseLegacySection(content, "packageMatch", m.PackageMatch)

	return &Legacy{
		Mappings:               m,
		BuiltinMappingsEnabled: parseLegacyBuiltinFlag(content),
	}
}

func parseLegacySection(content, section string, target *OrderedMap) {
	startTag := `<entry key="` + section + `">`
	const endTag = "</entry>"

	start := strings.Index(content, startTag)
	if start < 0 {
		return
	}
	end := strings.Index(content[start:], endTag)
	if end < 0 {
		return
	}
	body := content[start : start+end+len(endTag)]

	for _, line := range strings.Split(body, "\n") {
		if !strings.Contains(line, "<entry key=") || !strings.Contains(line, "value=") {
			continue
		}
		key, ok := quotedAttr(line, `key="`)
		if !ok {
			continue
		}
		value, ok := quotedAttr(line, `value="`)
		if !ok {
			continue
		}
		target.Set(xmlUnescaper.Replace(key), xmlUnescaper.Replace(value))
	}
}

// quotedAttr returns the non-empty text between prefix and the next quote
func quotedAttr(line, prefix string) (string, bool) {
	i := strings.Index(line, prefix)
	if i < 0 {
		return "", false
	}
	rest := line[i+len(prefix):]
	j := strings.Index(rest, `"`)
	if j <= 0 {
		return "", false
	}
	return rest[:j], true
}

func parseLegacyBuiltinFlag(content string) *bool {
	const marker = `<entry key="builtinMappingsEnabled" value="`
	i := strings.Index(content, marker)
	if i < 0 {
		return nil
	}
	rest := content[i+len(marker):]
	j := strings.Index(rest, `"`)
	if j <= 0 {
		return nil
	}
	enabled := strings.EqualFold(rest[:j], "true")
	return &enabled
}
