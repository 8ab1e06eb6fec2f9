// Package i18n resolves user-facing text in the two supported languages.
// The language is always passed in by the caller; there is no process-wide
// current language.
package i18n

// Language is a supported display language
type Language string

const (
	English Language = "en"
	Chinese Language = "zh"
)

// FromCode maps a stored language code to a Language. Unknown codes are English.
func FromCode(code string) Language {
	switch Language(code) {
	case Chinese:
		return Chinese
	default:
		return English
	}
}

// Code returns the persisted language code
func (l Language) Code() string {
	return string(FromCode(string(l)))
}

// DisplayName returns the language name in its own script
func (l Language) DisplayName() string {
	if l == Chinese {
		return "中文"
	}
	return "English"
}

// Text picks the text for lang
func Text(lang Language, zh, en string) string {
	if lang == Chinese {
		return zh
	}
	return en
}

// Shared strings used by the store and the command surfaces
var (
	ExportName        = pair{"用户备注", "User annotations"}
	ExportDescription = pair{"用户自定义备注", "User defined annotations"}
)

type pair struct{ zh, en string }

// In returns the text for lang
func (p pair) In(lang Language) string {
	return Text(lang, p.zh, p.en)
}
