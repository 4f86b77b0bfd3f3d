package desk

import (
	"fno-desk/internal/interfaces"
)

// New builds the order desk. lookup supplies lot and tick sizes for exits and
// may be nil.
func New(cfg Config, brk interfaces.Broker, lookup InstrumentLookup) interfaces.Desk {
	return newDesk(cfg, brk, lookup)
}
