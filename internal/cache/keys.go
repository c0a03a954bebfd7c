package cache

import (
	"strings"
	"time"

	"mtfchart/internal/config"
)

// Namespace prefixes every key the chart daemon writes to Redis.
const Namespace = "mtfchart"

const defaultHistoryRetention = 5 * time.Minute

// HistoryKey addresses the cached series of one provider/symbol/resolution.
// Blank segments are dropped so an unnamed provider still yields a usable key.
func HistoryKey(provider, symbol, resolution string) string {
	var b strings.Builder
	b.WriteString(Namespace)
	b.WriteString(":history")
	for _, seg := range []string{provider, symbol, resolution} {
		if seg = strings.TrimSpace(seg); seg != "" {
			b.WriteByte(':')
			b.WriteString(seg)
		}
	}
	return b.String()
}

// HistoryTTL bounds how long a cached series is kept at all. Freshness per
// request is still decided by the request's MaxAge. A negative setting
// disables expiry, zero falls back to five minutes.
func HistoryTTL(ttl config.CacheTTL) time.Duration {
	switch {
	case ttl.History < 0:
		return 0
	case ttl.History == 0:
		return defaultHistoryRetention
	default:
		return time.Duration(ttl.History) * time.Second
	}
}
