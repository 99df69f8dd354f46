package replicate

import (
	"strings"
	"testing"

	"cellenics/internal/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNamespace(t *testing.T) {
	for _, ok := range []string{"a", "ns1", "jane-brave-otter", "0-9", strings.Repeat("a", MaxNamespaceLen)} {
		ns, err := ParseNamespace(ok)
		require.NoError(t, err, ok)
		assert.Equal(t, Namespace(ok), ns)
	}
	for _, bad := range []string{"", "-a", "a-", "A", "a_b", "a.b", "a b", strings.Repeat("a", MaxNamespaceLen+1)} {
		_, err := ParseNamespace(bad)
		assert.ErrorIs(t, err, errs.ErrInvalidNamespace, bad)
	}
}

func TestRewriteAndStripRoundTrip(t *testing.T) {
	ns := Namespace("sandbox")
	for _, id := range []string{"e1", "2b7f3c1e-9a4d-4c55-8a2e-1f0c3b9d7e61", "sandbox", "sandbox1-x", "a/b"} {
		renamed := RewriteID(id, ns)
		assert.True(t, ns.Owns(renamed))
		original, ok := StripNamespace(renamed, ns)
		require.True(t, ok, id)
		assert.Equal(t, id, original)
	}
	_, ok := StripNamespace("other-e1", ns)
	assert.False(t, ok)
	assert.Equal(t, "", RewriteID("", ns))
	assert.False(t, ns.Owns("sandbox1-x"), "prefix match needs the separator")
}

func TestGenerateNamespaceAlwaysParses(t *testing.T) {
	nicks := []string{"", "jane", "Jane Doe", "a-very-long-user-nickname-that-overflows", "__weird__"}
	seen := map[Namespace]bool{}
	for i := 0; i < 50; i++ {
		ns := GenerateNamespace(nicks[i%len(nicks)])
		_, err := ParseNamespace(string(ns))
		require.NoError(t, err, ns)
		assert.LessOrEqual(t, len(ns), MaxNamespaceLen)
		seen[ns] = true
	}
	assert.Greater(t, len(seen), 40, "generated names should rarely collide")
	assert.True(t, strings.HasPrefix(string(GenerateNamespace("Jane Doe")), "jane-doe-"))
}
