// Package taxonomy maps free-text category suggestions onto a small, stable
// set of canonical list names and decides when a suggestion duplicates a
// list the user already has.
package taxonomy

import (
	"strings"

	"golang.org/x/text/cases"
)

// Locale selects the language canonical names are returned in.
type Locale string

const (
	LocaleEN Locale = "en"
	LocaleZH Locale = "zh"
)

// ParseLocale returns LocaleEN for anything it does not recognize.
func ParseLocale(s string) Locale {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "zh", "zh-cn", "zh_cn", "cn":
		return LocaleZH
	default:
		return LocaleEN
	}
}

// Canonical category indexes. The order is shared by every locale table.
const (
	AITools = iota
	ProxyTools
	CLITools
	Frontend
	Backend
	Database
	DevOps
	Editor
	DevTools
	DownloadTools
	MediaTools
	SecurityTools
	LearningResources
	SystemTools
	Other
)

var canonicalNames = map[Locale][]string{
	LocaleEN: {
		"AI Tools", "Proxy Tools", "CLI Tools", "Frontend", "Backend",
		"Database", "DevOps", "Editor", "Dev Tools", "Download Tools",
		"Media Tools", "Security Tools", "Learning Resources", "System Tools", "Other",
	},
	LocaleZH: {
		"AI 工具", "代理工具", "命令行工具", "前端", "后端",
		"数据库", "运维", "编辑器", "开发工具", "下载工具",
		"媒体工具", "安全工具", "学习资源", "系统工具", "其他",
	},
}

// CanonicalNames returns the canonical list names for locale, in order.
func CanonicalNames(locale Locale) []string {
	names, ok := canonicalNames[locale]
	if !ok {
		names = canonicalNames[LocaleEN]
	}
	out := make([]string, len(names))
	copy(out, names)
	return out
}

// Name returns the canonical name at index in locale.
func Name(locale Locale, index int) string {
	names, ok := canonicalNames[locale]
	if !ok {
		names = canonicalNames[LocaleEN]
	}
	if index < 0 || index >= len(names) {
		return names[Other]
	}
	return names[index]
}

// Translate maps a canonical name from any locale to locale. Names that are
// not canonical are returned unchanged.
func Translate(name string, locale Locale) string {
	if idx, ok := canonicalIndex(name); ok {
		return Name(locale, idx)
	}
	return name
}

// Normalizer maps candidate names onto canonical categories.
type Normalizer struct {
	locale Locale
	rules  []Rule
}

// NewNormalizer returns a Normalizer that answers in locale using the
// default rule table.
func NewNormalizer(locale Locale) *Normalizer {
	return &Normalizer{locale: locale, rules: DefaultRules()}
}

// NewNormalizerWithRules is NewNormalizer with a custom ordered rule table.
func NewNormalizerWithRules(locale Locale, rules []Rule) *Normalizer {
	return &Normalizer{locale: locale, rules: rules}
}

// Locale returns the locale names are produced in.
func (n *Normalizer) Locale() Locale {
	return n.locale
}

// Normalize resolves candidate to a canonical name: an exact canonical name
// in any locale first, then the first matching rule, then Other.
func (n *Normalizer) Normalize(candidate string) string {
	return Name(n.locale, n.Index(candidate))
}

// Index is Normalize but returns the canonical index.
func (n *Normalizer) Index(candidate string) int {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" {
		return Other
	}
	if idx, ok := canonicalIndex(candidate); ok {
		return idx
	}
	for _, r := range n.rules {
		if r.Pattern.MatchString(candidate) {
			return r.Category
		}
	}
	return Other
}

func canonicalIndex(name string) (int, bool) {
	folded := fold(name)
	for _, locale := range []Locale{LocaleEN, LocaleZH} {
		for i, canonical := range canonicalNames[locale] {
			if fold(canonical) == folded {
				return i, true
			}
		}
	}
	return 0, false
}

// fold is Unicode case folding plus whitespace trimming.
func fold(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}
