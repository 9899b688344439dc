package game

import (
	"sync"

	"quiz-ladder-service/internal/domain"
)

// hub fans leaderboard snapshots out to subscribers, keyed by stage. Slow
// consumers never block a broadcast: the stale snapshot in their buffer is
// dropped and replaced with the fresh one.
type hub struct {
	mu          sync.Mutex
	subscribers map[int64]map[chan domain.Leaderboard]struct{}
}

func newHub() *hub {
	return &hub{subscribers: make(map[int64]map[chan domain.Leaderboard]struct{})}
}

func (h *hub) subscribe(stage int64, initial domain.Leaderboard) (<-chan domain.Leaderboard, func()) {
	ch := make(chan domain.Leaderboard, 8)
	ch <- initial

	h.mu.Lock()
	if h.subscribers[stage] == nil {
		h.subscribers[stage] = make(map[chan domain.Leaderboard]struct{})
	}
	h.subscribers[stage][ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if set, ok := h.subscribers[stage]; ok {
			if _, ok := set[ch]; ok {
				delete(set, ch)
				close(ch)
			}
			if len(set) == 0 {
				delete(h.subscribers, stage)
			}
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

func (h *hub) broadcast(lb domain.Leaderboard) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subscribers[lb.Stage] {
		select {
		case ch <- lb:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- lb
		}
	}
}
