package dispatch

import "sync"

// Waker delivers "order left searching_driver" signals to the search waiting on that order
type Waker struct {
	mu    sync.Mutex
	chans map[int64]chan struct{}
}

func NewWaker() *Waker {
	return &Waker{chans: make(map[int64]chan struct{})}
}

// Subscribe registers the caller as the listener for orderID.
// The returned func unregisters it.
func (w *Waker) Subscribe(orderID int64) (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	w.mu.Lock()
	w.chans[orderID] = ch
	w.mu.Unlock()

	return ch, func() {
		w.mu.Lock()
		if w.chans[orderID] == ch {
			delete(w.chans, orderID)
		}
		w.mu.Unlock()
	}
}

// Wake signals the listener of orderID, if any. It never blocks.
func (w *Waker) Wake(orderID int64) {
	w.mu.Lock()
	ch, ok := w.chans[orderID]
	w.mu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- struct{}{}:
	default:
	}
}
