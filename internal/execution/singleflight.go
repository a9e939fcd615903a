package execution

import (
	"sync"

	"github.com/hulrap/TradingBot-sub007/internal/domain"
)

// singleFlight is the in-process per-fingerprint execution lock: at most one
// non-terminal attempt may exist per fingerprint at any instant. Acquisition
// never blocks; a held key is an expected outcome, not an error condition.
type singleFlight struct {
	mu       sync.Mutex
	inFlight map[domain.Fingerprint]struct{}
}

func newSingleFlight() *singleFlight {
	return &singleFlight{inFlight: make(map[domain.Fingerprint]struct{})}
}

// TryAcquire claims the fingerprint. On success it returns a release
// function that is safe to call more than once; otherwise it returns
// domain.ErrInFlight.
func (s *singleFlight) TryAcquire(fp domain.Fingerprint) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, held := s.inFlight[fp]; held {
		return nil, domain.ErrInFlight
	}
	s.inFlight[fp] = struct{}{}

	var once sync.Once
	release := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.inFlight, fp)
			s.mu.Unlock()
		})
	}
	return release, nil
}

// Held reports whether the fingerprint is currently claimed.
func (s *singleFlight) Held(fp domain.Fingerprint) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, held := s.inFlight[fp]
	return held
}

// Count returns the number of claimed fingerprints.
func (s *singleFlight) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inFlight)
}
