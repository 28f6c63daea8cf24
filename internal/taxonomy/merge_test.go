package taxonomy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kevinmichaelchen/star-lists/internal/models"
)

func lists(names ...string) []models.Category {
	out := make([]models.Category, 0, len(names))
	for i, n := range names {
		out = append(out, models.Category{Key: n, Name: n, Position: i})
	}
	return out
}

func TestFindExistingMatchExact(t *testing.T) {
	existing := lists("Backend Frameworks", "backend")
	got, ok := FindExistingMatch("Backend", existing)
	assert.True(t, ok)
	assert.Equal(t, "backend", got.Name, "exact match beats an earlier containment match")
}

func TestFindExistingMatchContainment(t *testing.T) {
	existing := lists("Databases", "AI")

	got, ok := FindExistingMatch("AI Tools", existing)
	assert.True(t, ok)
	assert.Equal(t, "AI", got.Name)

	got, ok = FindExistingMatch("database", existing)
	assert.True(t, ok)
	assert.Equal(t, "Databases", got.Name)
}

func TestFindExistingMatchKeywordGroup(t *testing.T) {
	existing := lists("Media", "人工智能")

	got, ok := FindExistingMatch("LLM Apps", existing)
	assert.True(t, ok)
	assert.Equal(t, "人工智能", got.Name)

	got, ok = FindExistingMatch("VPN", lists("代理"))
	assert.True(t, ok)
	assert.Equal(t, "代理", got.Name)

	got, ok = FindExistingMatch("Docker stuff", lists("Kubernetes"))
	assert.True(t, ok)
	assert.Equal(t, "Kubernetes", got.Name)
}

func TestFindExistingMatchNone(t *testing.T) {
	_, ok := FindExistingMatch("Email clients", lists("Proxy", "Backend", "LLM"))
	assert.False(t, ok, "ai keyword must not match inside email")

	_, ok = FindExistingMatch("Email", lists("AI"))
	assert.False(t, ok, "containment needs a word start")

	_, ok = FindExistingMatch("Gardening", nil)
	assert.False(t, ok)

	_, ok = FindExistingMatch("  ", lists("Anything"))
	assert.False(t, ok)
}

func TestFindExistingMatchSkipsEmptyNames(t *testing.T) {
	_, ok := FindExistingMatch("Gardening", lists(""))
	assert.False(t, ok)
}

func TestFindExistingMatchDeterministic(t *testing.T) {
	existing := lists("Proxy", "VPN", "Network Proxy")
	first, ok := FindExistingMatch("proxy vpn", existing)
	assert.True(t, ok)
	for i := 0; i < 20; i++ {
		got, _ := FindExistingMatch("proxy vpn", existing)
		assert.Equal(t, first, got)
	}
	assert.Equal(t, "Proxy", first.Name)
}
