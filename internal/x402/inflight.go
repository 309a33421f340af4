package x402

import (
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/livebet/internal/domain"
)

// inFlight tracks Pay calls that have not returned yet so a concurrent second
// call for the same intent is refused instead of paying twice. Entries live
// only for the duration of a call; a sequential retry always starts fresh.
type inFlight struct {
	mu      sync.Mutex
	running map[string]time.Time
}

func newInFlight() *inFlight {
	return &inFlight{running: make(map[string]time.Time)}
}

// acquire records key and returns true. When a call with the same key is
// still running it returns false and the time that call started.
func (f *inFlight) acquire(key string) (time.Time, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if started, busy := f.running[key]; busy {
		return started, false
	}
	f.running[key] = time.Now()
	return time.Time{}, true
}

func (f *inFlight) release(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.running, key)
}

func intentKey(endpoint string, intent domain.BetIntent) string {
	return strings.Join([]string{
		endpoint,
		intent.MarketID,
		string(intent.Outcome),
		intent.CategoryOrSport(),
		intent.Stake.String(),
	}, "|")
}
