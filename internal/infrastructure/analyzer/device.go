package analyzer

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"marketplace-risk-engine/internal/domain/risk"
)

// botKeywords mark automated clients in the user-agent string.
var botKeywords = []string{
	"bot", "crawler", "spider", "curl", "wget", "python-requests",
	"scrapy", "headless", "phantomjs", "selenium", "puppeteer",
}

// proxyIdentifierHeaders explicitly identify a proxy in the path and are
// penalized even when they appear alone.
var proxyIdentifierHeaders = []string{"via", "x-proxy-id", "proxy-connection"}

// forwardingHeaders are generic forwarding markers. A single one is normal
// infrastructure (a load balancer sets X-Forwarded-For); only combinations
// of two or more are suspicious.
var forwardingHeaders = []string{
	"x-forwarded-for", "x-real-ip", "forwarded", "client-ip",
	"x-client-ip", "x-forwarded", "x-originating-ip",
}

// expectedBrowserHeaders are present on virtually every real browser request.
var expectedBrowserHeaders = []string{"accept", "accept-language"}

// DeviceAnalyzer derives a risk contribution from request metadata and
// produces a privacy-preserving fingerprint. Raw sensitive headers are
// never stored; only a salted hash plus coarse signal flags leave this
// package.
type DeviceAnalyzer struct {
	salt string

	mu    sync.Mutex
	cache map[string]fingerprintEntry
	ttl   time.Duration
	now   func() time.Time
}

type fingerprintEntry struct {
	fingerprint string
	expiresAt   time.Time
}

// NewDeviceAnalyzer creates the analyzer with the given hash salt.
func NewDeviceAnalyzer(salt string) *DeviceAnalyzer {
	return &DeviceAnalyzer{
		salt:  salt,
		cache: make(map[string]fingerprintEntry),
		ttl:   time.Hour,
		now:   time.Now,
	}
}

// Score inspects the request context for automation and proxy signals.
// Risky when the score exceeds 30.
func (d *DeviceAnalyzer) Score(rc *risk.RequestContext) Signal {
	if rc == nil {
		return none()
	}

	score := 0
	var reasons []string

	ua := strings.ToLower(rc.UserAgent)
	switch {
	case containsAny(ua, botKeywords):
		score += 30
		reasons = append(reasons, "automation keyword in user agent")
	case len(rc.UserAgent) < 10:
		score += 20
		reasons = append(reasons, "missing or truncated user agent")
	}

	identifiers := countPresent(rc, proxyIdentifierHeaders)
	forwarders := countPresent(rc, forwardingHeaders)
	switch {
	case identifiers > 0 && forwarders > 0:
		score += 25
		reasons = append(reasons, "proxy identifier combined with forwarding headers")
	case identifiers > 0:
		score += 20
		reasons = append(reasons, "explicit proxy identifier header")
	case forwarders >= 2:
		score += 15
		reasons = append(reasons, "multiple forwarding headers present")
	}

	missing := 0
	for _, h := range expectedBrowserHeaders {
		if rc.Header(h) == "" {
			missing++
		}
	}
	if missing == len(expectedBrowserHeaders) {
		score += 15
		reasons = append(reasons, "common browser headers absent")
	}

	if score == 0 {
		return none()
	}
	return Signal{
		IsRisky: score > 30,
		Reason:  "device signals: " + strings.Join(reasons, "; "),
		Score:   score,
	}
}

// Fingerprint returns a one-way hash over a restricted header subset plus
// the source IP. The same request shape hashes to the same value, which
// lets reviewers correlate sessions without raw identifiers.
func (d *DeviceAnalyzer) Fingerprint(rc *risk.RequestContext) string {
	if rc == nil {
		return ""
	}
	material := strings.Join([]string{
		d.salt,
		rc.UserAgent,
		rc.Header("accept"),
		rc.Header("accept-language"),
		rc.ClientIP,
	}, "|")

	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if e, ok := d.cache[material]; ok && now.Before(e.expiresAt) {
		return e.fingerprint
	}

	sum := sha256.Sum256([]byte(material))
	fp := hex.EncodeToString(sum[:16])
	d.cache[material] = fingerprintEntry{fingerprint: fp, expiresAt: now.Add(d.ttl)}

	// Opportunistic prune keeps the cache bounded.
	for k, e := range d.cache {
		if now.After(e.expiresAt) {
			delete(d.cache, k)
		}
	}
	return fp
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

func countPresent(rc *risk.RequestContext, names []string) int {
	n := 0
	for _, name := range names {
		if rc.Header(name) != "" {
			n++
		}
	}
	return n
}
