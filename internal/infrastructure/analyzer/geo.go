package analyzer

import (
	"context"
	"fmt"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"marketplace-risk-engine/internal/domain/risk"
	"marketplace-risk-engine/internal/infrastructure/statestore"
)

// reputationTTL keeps per-IP reputation for a week.
const reputationTTL = 7 * 24 * time.Hour

// GeoAnalyzer flags IP-range anomalies and maintains a per-IP reputation
// cache in the shared store.
type GeoAnalyzer struct {
	store statestore.Store
}

// NewGeoAnalyzer creates the analyzer over the given state store.
func NewGeoAnalyzer(store statestore.Store) *GeoAnalyzer {
	return &GeoAnalyzer{store: store}
}

func reputationKey(ip string) string {
	return "risk:ip:reputation:" + ip
}

// Score evaluates the source address. Private and loopback sources are
// trusted infrastructure and score zero. Risky when the score exceeds 20.
func (g *GeoAnalyzer) Score(ctx context.Context, rc *risk.RequestContext) Signal {
	if rc == nil || rc.ClientIP == "" {
		return none()
	}

	addr, err := netip.ParseAddr(rc.ClientIP)
	if err != nil {
		return Signal{
			IsRisky: true,
			Reason:  "client address is not a valid IP",
			Score:   25,
		}
	}
	if addr.IsLoopback() || addr.IsPrivate() || addr.IsLinkLocalUnicast() {
		return none()
	}

	score := 0
	var reasons []string

	// A public source presenting private-range forwarded addresses is a
	// spoofing pattern: nothing legitimate forwards RFC1918 space to us.
	if spoofedPrivateForward(rc) {
		score += 25
		reasons = append(reasons, "private-range address in forwarding headers from public source")
	}

	// Stored reputation contributes half its value.
	if val, ok := g.store.Get(ctx, reputationKey(rc.ClientIP)); ok {
		if stored, err := strconv.Atoi(val); err == nil && stored > 50 {
			score += stored / 2
			reasons = append(reasons, fmt.Sprintf("IP has stored risk reputation of %d", stored))
		}
	}

	if score == 0 {
		return none()
	}
	return Signal{
		IsRisky: score > 20,
		Reason:  "geo signals: " + strings.Join(reasons, "; "),
		Score:   score,
	}
}

// RecordReputation persists the IP's risk score when it worsened.
// Best-effort: a failed write only shortens the reputation's memory.
func (g *GeoAnalyzer) RecordReputation(ctx context.Context, ip string, score int) {
	if ip == "" || score <= 0 {
		return
	}
	if val, ok := g.store.Get(ctx, reputationKey(ip)); ok {
		if stored, err := strconv.Atoi(val); err == nil && stored >= score {
			return
		}
	}
	g.store.Set(ctx, reputationKey(ip), strconv.Itoa(score), reputationTTL)
}

func spoofedPrivateForward(rc *risk.RequestContext) bool {
	for _, header := range []string{"x-forwarded-for", "x-real-ip", "client-ip"} {
		raw := rc.Header(header)
		if raw == "" {
			continue
		}
		for _, part := range strings.Split(raw, ",") {
			addr, err := netip.ParseAddr(strings.TrimSpace(part))
			if err != nil {
				continue
			}
			if addr.IsPrivate() || addr.IsLoopback() {
				return true
			}
		}
	}
	return false
}
