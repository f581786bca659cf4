package analyzer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"marketplace-risk-engine/internal/domain/risk"
	"marketplace-risk-engine/internal/infrastructure/statestore"
)

func geoContext(ip string, headers map[string]string) *risk.RequestContext {
	return risk.NewRequestContext(ip, "Mozilla/5.0", headers)
}

func TestGeoTrustedRangesScoreZero(t *testing.T) {
	g := NewGeoAnalyzer(statestore.NewMemoryStore())

	for _, ip := range []string{"127.0.0.1", "10.0.0.5", "192.168.1.20", "169.254.0.9", "::1"} {
		sig := g.Score(context.Background(), geoContext(ip, nil))
		assert.Zero(t, sig.Score, "ip %s", ip)
	}
}

func TestGeoUnparseableAddressIsRisky(t *testing.T) {
	g := NewGeoAnalyzer(statestore.NewMemoryStore())

	sig := g.Score(context.Background(), geoContext("not-an-ip", nil))
	assert.Equal(t, 25, sig.Score)
	assert.True(t, sig.IsRisky)
}

func TestGeoSpoofedPrivateForward(t *testing.T) {
	g := NewGeoAnalyzer(statestore.NewMemoryStore())

	sig := g.Score(context.Background(), geoContext("203.0.113.9", map[string]string{
		"x-forwarded-for": "192.168.1.5, 203.0.113.9",
	}))
	assert.Equal(t, 25, sig.Score)
	assert.True(t, sig.IsRisky)
}

func TestGeoPublicForwardChainIsClean(t *testing.T) {
	g := NewGeoAnalyzer(statestore.NewMemoryStore())

	sig := g.Score(context.Background(), geoContext("203.0.113.9", map[string]string{
		"x-forwarded-for": "198.51.100.4, 203.0.113.9",
	}))
	assert.Zero(t, sig.Score)
}

func TestGeoStoredReputationContributesHalf(t *testing.T) {
	ctx := context.Background()
	store := statestore.NewMemoryStore()
	g := NewGeoAnalyzer(store)

	g.RecordReputation(ctx, "203.0.113.9", 80)

	sig := g.Score(ctx, geoContext("203.0.113.9", nil))
	assert.Equal(t, 40, sig.Score)
	assert.True(t, sig.IsRisky)
	assert.Contains(t, sig.Reason, "reputation of 80")
}

func TestGeoLowReputationIsIgnored(t *testing.T) {
	ctx := context.Background()
	store := statestore.NewMemoryStore()
	g := NewGeoAnalyzer(store)

	g.RecordReputation(ctx, "203.0.113.9", 50)

	sig := g.Score(ctx, geoContext("203.0.113.9", nil))
	assert.Zero(t, sig.Score)
}

func TestGeoRecordReputationKeepsWorst(t *testing.T) {
	ctx := context.Background()
	store := statestore.NewMemoryStore()
	g := NewGeoAnalyzer(store)

	g.RecordReputation(ctx, "203.0.113.9", 80)
	g.RecordReputation(ctx, "203.0.113.9", 60)

	val, ok := store.Get(ctx, "risk:ip:reputation:203.0.113.9")
	assert.True(t, ok)
	assert.Equal(t, "80", val)
}
