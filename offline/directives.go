package offline

import (
	"strconv"
	"strings"
	"time"
)

// cacheDirectives holds the Cache-Control directives the proxy honours.
type cacheDirectives struct {
	NoStore bool
	NoCache bool
	MaxAge  *time.Duration
}

// parseCacheControl parses a Cache-Control header into structured directives.
func parseCacheControl(header string) cacheDirectives {
	var directives cacheDirectives
	if header == "" {
		return directives
	}

	for _, part := range strings.Split(header, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			continue
		}

		if key, value, ok := strings.Cut(part, "="); ok {
			value = strings.Trim(strings.TrimSpace(value), "\"")
			if strings.TrimSpace(key) == "max-age" {
				if seconds, err := strconv.Atoi(value); err == nil && seconds >= 0 {
					maxAge := time.Duration(seconds) * time.Second
					directives.MaxAge = &maxAge
				}
			}
			continue
		}

		switch part {
		case "no-store":
			directives.NoStore = true
		case "no-cache":
			directives.NoCache = true
		}
	}

	return directives
}

// ttlFor returns how long a response may be kept and whether it may be
// stored at all. max-age=0 is treated like no-store.
func ttlFor(header string, fallback time.Duration) (time.Duration, bool) {
	d := parseCacheControl(header)
	if d.NoStore {
		return 0, false
	}
	if d.MaxAge != nil {
		if *d.MaxAge == 0 {
			return 0, false
		}
		return *d.MaxAge, true
	}
	return fallback, true
}
