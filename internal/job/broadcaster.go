package job

import (
	"sync"

	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/facetrail/internal/domain"
)

const subscriberBuffer = 32

// broadcaster fans job events out to per-job subscribers. A subscriber that
// falls behind loses progress events rather than blocking the job, but always
// receives the terminal state event.
type broadcaster struct {
	mu   sync.Mutex
	subs map[uuid.UUID]map[chan domain.JobEvent]struct{}
}

func newBroadcaster() *broadcaster {
	return &broadcaster{subs: make(map[uuid.UUID]map[chan domain.JobEvent]struct{})}
}

func (b *broadcaster) subscribe(id uuid.UUID) (<-chan domain.JobEvent, func()) {
	ch := make(chan domain.JobEvent, subscriberBuffer)

	b.mu.Lock()
	if b.subs[id] == nil {
		b.subs[id] = make(map[chan domain.JobEvent]struct{})
	}
	b.subs[id][ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if set, ok := b.subs[id]; ok {
				if _, ok := set[ch]; ok {
					delete(set, ch)
					close(ch)
				}
				if len(set) == 0 {
					delete(b.subs, id)
				}
			}
		})
	}
	return ch, cancel
}

// publish delivers ev and, for terminal states, closes every subscriber of the job.
func (b *broadcaster) publish(ev domain.JobEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	terminal := ev.Type == domain.JobEventState && ev.State.IsTerminal()
	set := b.subs[ev.JobID]
	for ch := range set {
		select {
		case ch <- ev:
			continue
		default:
		}
		if !terminal {
			continue
		}
		// Full buffer: drop the oldest event to make room for the final state.
		// publish is the only sender and holds mu, so the retry finds a free slot.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- ev:
		default:
		}
	}

	if terminal {
		for ch := range set {
			close(ch)
		}
		delete(b.subs, ev.JobID)
	}
}
