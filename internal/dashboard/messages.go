package dashboard

import "fno-desk/internal/poller"

// UpdateMsg carries a poller update into the UI loop.
type UpdateMsg struct {
	Update poller.Update
}
