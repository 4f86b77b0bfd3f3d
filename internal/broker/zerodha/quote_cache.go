package zerodha

import (
	"sync"
	"time"

	"github.com/zerodha/gokiteconnect/v4/models"

	"fno-desk/internal/types"
)

// quoteCache holds the latest streamed quote per instrument key.
type quoteCache struct {
	entries map[string]cachedQuote
	mu      sync.RWMutex
	now     func() time.Time
}

type cachedQuote struct {
	quote      types.Quote
	receivedAt time.Time
}

func newQuoteCache() *quoteCache {
	return &quoteCache{
		entries: make(map[string]cachedQuote),
		now:     time.Now,
	}
}

func (qc *quoteCache) put(q types.Quote) {
	qc.mu.Lock()
	defer qc.mu.Unlock()

	qc.entries[q.Key] = cachedQuote{quote: q, receivedAt: qc.now()}
}

// get returns the quote for key if it arrived within maxAge. A zero maxAge
// accepts any age.
func (qc *quoteCache) get(key string, maxAge time.Duration) (types.Quote, bool) {
	qc.mu.RLock()
	defer qc.mu.RUnlock()

	e, ok := qc.entries[key]
	if !ok {
		return types.Quote{}, false
	}
	if maxAge > 0 && qc.now().Sub(e.receivedAt) > maxAge {
		return types.Quote{}, false
	}
	return e.quote, true
}

func (qc *quoteCache) clear() {
	qc.mu.Lock()
	defer qc.mu.Unlock()

	qc.entries = make(map[string]cachedQuote)
}

// bestLevel returns the first populated price level of one side of the book.
func bestLevel(levels []models.DepthItem) (price float64, qty int) {
	for _, l := range levels {
		if l.Price > 0 {
			return l.Price, int(l.Quantity)
		}
	}
	return 0, 0
}
