package logger

import (
	"strconv"
	"strings"
	"sync"
)

// keyedSampler passes `keep` out of every `window` events per key. Each bot gets
// its own counter so a busy bot cannot consume another bot's debug samples.
type keyedSampler struct {
	mu       sync.Mutex
	keep     int
	window   int
	counters map[string]int
}

func newKeyedSampler(keep, window int) *keyedSampler {
	s := &keyedSampler{}
	s.Configure(keep, window)
	return s
}

// Configure replaces the ratio and resets all counters. A non-positive value
// disables sampling, so every event passes.
func (s *keyedSampler) Configure(keep, window int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if keep <= 0 || window <= 0 {
		keep, window = 0, 0
	}
	if keep > window {
		keep = window
	}
	s.keep = keep
	s.window = window
	s.counters = make(map[string]int)
}

// Allow advances the counter for key and reports whether the event is kept.
// The first `keep` events of each window pass.
func (s *keyedSampler) Allow(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.window == 0 {
		return true
	}
	n := s.counters[key]%s.window + 1
	s.counters[key] = n
	return n <= s.keep
}

// parseSampleRatio accepts "k/n" or "n" (meaning 1/n). Anything unparsable or
// non-positive yields 0, 0.
func parseSampleRatio(raw string) (keep, window int) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, 0
	}
	if k, n, ok := strings.Cut(raw, "/"); ok {
		kv, err1 := strconv.Atoi(strings.TrimSpace(k))
		nv, err2 := strconv.Atoi(strings.TrimSpace(n))
		if err1 != nil || err2 != nil || kv <= 0 || nv <= 0 {
			return 0, 0
		}
		return kv, nv
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, 0
	}
	return 1, n
}
