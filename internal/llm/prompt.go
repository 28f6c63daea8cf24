package llm

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/kevinmichaelchen/star-lists/internal/models"
	"github.com/kevinmichaelchen/star-lists/internal/taxonomy"
)

const systemPromptTemplate = `You organize a developer's GitHub stars into lists. Given a repository and the user's existing lists, produce a JSON object with:

1. "matched_list": the name of the existing list the repository belongs in, copied exactly, or null if none fits.
2. "confidence": a number from 0 to 1.
3. "create_new": true only when no existing list fits.
4. "new_list_name": when create_new is true, a short list name. Prefer one of:
   %s
5. "reason": one short sentence.

Return ONLY valid JSON. No markdown, no code fences.`

func systemPrompt(locale taxonomy.Locale) string {
	return fmt.Sprintf(systemPromptTemplate, strings.Join(taxonomy.CanonicalNames(locale), ", "))
}

const maxReadmeChars = 1500

func userPrompt(repo models.Repository, existing []string) string {
	var parts []string
	parts = append(parts, fmt.Sprintf("Repository: %s", repo.FullName))
	if repo.Description != nil && *repo.Description != "" {
		parts = append(parts, fmt.Sprintf("Description: %s", *repo.Description))
	}
	if repo.Language != nil && *repo.Language != "" {
		parts = append(parts, fmt.Sprintf("Language: %s", *repo.Language))
	}
	if len(repo.Topics) > 0 {
		parts = append(parts, fmt.Sprintf("Topics: %s", strings.Join(repo.Topics, ", ")))
	}
	if repo.ReadmeExcerpt != nil && *repo.ReadmeExcerpt != "" {
		text := *repo.ReadmeExcerpt
		if len(text) > maxReadmeChars {
			cut := maxReadmeChars
			for cut > 0 && !utf8.RuneStart(text[cut]) {
				cut--
			}
			text = text[:cut]
		}
		parts = append(parts, fmt.Sprintf("README excerpt:\n%s", text))
	}

	lists := "(none yet)"
	if len(existing) > 0 {
		lists = strings.Join(existing, ", ")
	}
	parts = append(parts, fmt.Sprintf("Existing lists: %s", lists))
	return strings.Join(parts, "\n\n")
}
