package taxonomy

import (
	"strings"
	"unicode"

	"github.com/kevinmichaelchen/star-lists/internal/models"
)

// keywordGroups holds names that mean the same thing for list merging. Two
// names that each hit a keyword from the same group are treated as one list.
var keywordGroups = [][]string{
	{"ai", "artificial intelligence", "llm", "gpt", "machine learning", "人工智能", "大模型", "机器学习"},
	{"proxy", "vpn", "代理", "翻墙", "科学上网"},
	{"devops", "docker", "kubernetes", "k8s", "运维", "容器"},
	{"cli", "command line", "terminal", "命令行", "终端"},
	{"frontend", "front-end", "前端"},
	{"backend", "back-end", "后端", "服务端"},
	{"database", "db", "数据库"},
	{"editor", "ide", "编辑器"},
	{"security", "安全", "渗透"},
	{"download", "downloader", "下载"},
	{"media", "video", "audio", "媒体", "视频", "音频"},
	{"learning", "tutorial", "学习", "教程"},
	{"system", "系统"},
}

// FindExistingMatch returns the existing category that proposed duplicates.
// Exact equality wins over containment, which wins over keyword groups; each
// pass scans existing in order, so the result is deterministic.
func FindExistingMatch(proposed string, existing []models.Category) (models.Category, bool) {
	p := fold(proposed)
	if p == "" {
		return models.Category{}, false
	}

	for _, c := range existing {
		if fold(c.Name) == p {
			return c, true
		}
	}

	for _, c := range existing {
		name := fold(c.Name)
		if name == "" {
			continue
		}
		if containsAtWordStart(p, name) || containsAtWordStart(name, p) {
			return c, true
		}
	}

	groups := matchingGroups(p)
	if len(groups) == 0 {
		return models.Category{}, false
	}
	for _, c := range existing {
		for g := range matchingGroups(fold(c.Name)) {
			if groups[g] {
				return c, true
			}
		}
	}
	return models.Category{}, false
}

// matchingGroups returns the indexes of the keyword groups folded hits.
func matchingGroups(folded string) map[int]bool {
	var hits map[int]bool
	for i, group := range keywordGroups {
		for _, kw := range group {
			if containsKeyword(folded, kw) {
				if hits == nil {
					hits = make(map[int]bool)
				}
				hits[i] = true
				break
			}
		}
	}
	return hits
}

// containsKeyword matches ASCII keywords on word boundaries so "ai" does not
// hit "email"; other keywords match as plain substrings.
func containsKeyword(s, kw string) bool {
	if !isASCII(kw) {
		return strings.Contains(s, kw)
	}
	for from := 0; ; {
		i := strings.Index(s[from:], kw)
		if i < 0 {
			return false
		}
		start := from + i
		end := start + len(kw)
		if boundaryBefore(s, start) && boundaryAfter(s, end) {
			return true
		}
		from = start + 1
	}
}

// containsAtWordStart is substring containment where an ASCII sub must
// begin a word, so "database" is in "databases" but "ai" is not in "email".
func containsAtWordStart(s, sub string) bool {
	if !isASCII(sub) {
		return strings.Contains(s, sub)
	}
	for from := 0; ; {
		i := strings.Index(s[from:], sub)
		if i < 0 {
			return false
		}
		if boundaryBefore(s, from+i) {
			return true
		}
		from += i + 1
	}
}

func boundaryBefore(s string, i int) bool {
	if i == 0 {
		return true
	}
	return !isASCIIWordByte(s[i-1])
}

func boundaryAfter(s string, i int) bool {
	if i >= len(s) {
		return true
	}
	return !isASCIIWordByte(s[i])
}

func isASCIIWordByte(b byte) bool {
	return b < unicode.MaxASCII && (b == '_' || b >= '0' && b <= '9' || b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z')
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] > unicode.MaxASCII {
			return false
		}
	}
	return true
}
