package zerodha

import (
	"sync"

	"fno-desk/internal/types"
)

// instrumentMapper manages bidirectional mapping between instrument keys and
// ticker tokens
type instrumentMapper struct {
	keyToToken map[string]uint32
	tokenToKey map[uint32]string
	mu         sync.RWMutex
}

func newInstrumentMapper() *instrumentMapper {
	return &instrumentMapper{
		keyToToken: make(map[string]uint32),
		tokenToKey: make(map[uint32]string),
	}
}

// add registers the instruments and returns the tokens that were not
// already mapped.
func (im *instrumentMapper) add(instruments []types.Instrument) []uint32 {
	im.mu.Lock()
	defer im.mu.Unlock()

	fresh := make([]uint32, 0, len(instruments))
	for _, in := range instruments {
		if in.Token == 0 {
			continue
		}
		if _, ok := im.tokenToKey[in.Token]; !ok {
			fresh = append(fresh, in.Token)
		}
		im.keyToToken[in.Key()] = in.Token
		im.tokenToKey[in.Token] = in.Key()
	}
	return fresh
}

func (im *instrumentMapper) getToken(key string) (uint32, bool) {
	im.mu.RLock()
	defer im.mu.RUnlock()

	token, exists := im.keyToToken[key]
	return token, exists
}

func (im *instrumentMapper) getKey(token uint32) string {
	im.mu.RLock()
	defer im.mu.RUnlock()

	return im.tokenToKey[token]
}

// getAllTokens returns all registered tokens
func (im *instrumentMapper) getAllTokens() []uint32 {
	im.mu.RLock()
	defer im.mu.RUnlock()

	tokens := make([]uint32, 0, len(im.tokenToKey))
	for token := range im.tokenToKey {
		tokens = append(tokens, token)
	}

	return tokens
}

func (im *instrumentMapper) clear() {
	im.mu.Lock()
	defer im.mu.Unlock()

	im.keyToToken = make(map[string]uint32)
	im.tokenToKey = make(map[uint32]string)
}
