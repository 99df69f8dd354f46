package replicate

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummaryCountsAndTouched(t *testing.T) {
	s := &Summary{Namespace: "ns", Origin: "production", Destination: "staging"}
	s.Add(
		CloneRecord{Kind: KindBlob, Entity: "c", RootID: "e1", Target: Location{"c", "ns-e1/a"}, Outcome: Copied},
		CloneRecord{Kind: KindBlob, Entity: "c", RootID: "e1", Target: Location{"c", "ns-e1/b"}, Outcome: SkippedEqual},
		CloneRecord{Kind: KindRecord, Entity: "Project", RootID: "e2", Target: Location{"p", "ns-p2"}, Outcome: Failed, Err: errors.New("boom")},
		CloneRecord{Kind: KindBlob, Entity: "c", RootID: "e3", Target: Location{"c", "ns-e1/a"}, Outcome: Copied},
	)

	assert.Equal(t, Counts{Copied: 2, Skipped: 1, Failed: 1}, s.Counts())
	require.Len(t, s.Failed(), 1)
	assert.Equal(t, "e2", s.Failed()[0].RootID)
	assert.Equal(t, []Location{{"c", "ns-e1/a"}, {"c", "ns-e1/b"}}, s.Touched())
}

func TestSummaryRender(t *testing.T) {
	s := &Summary{Namespace: "ns", Origin: "production", Destination: "staging"}
	s.Add(
		CloneRecord{Kind: KindBlob, Entity: "cell-sets", RootID: "e1",
			Source: Location{"cell-sets-production", "e1"}, Target: Location{"cell-sets-staging", "ns-e1"}, Outcome: Copied},
		CloneRecord{Kind: KindRecord, Entity: "Project", RootID: "e2", Outcome: Failed, Err: errors.New("throttled")},
	)
	var b strings.Builder
	require.NoError(t, s.Render(&b))
	out := b.String()
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.True(t, strings.HasPrefix(lines[0], "KIND"))
	assert.Contains(t, lines[1], "cell-sets-production/e1")
	assert.Contains(t, lines[1], "cell-sets-staging/ns-e1")
	assert.Contains(t, lines[2], "failed: throttled")
	assert.Contains(t, out, `production -> staging as "ns": 1 copied, 0 skipped (already equal), 1 failed`)
}
