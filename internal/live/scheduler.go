package live

import (
	"fmt"
	"sync"
	"time"

	"github.com/MrWong99/peridot-guide/pkg/audio"
)

// Scheduler places decoded buffers back to back on an output context so that
// consecutive chunks play gaplessly in arrival order.
//
// The playback cursor marks where the next buffer starts. It never trails the
// output clock at scheduling time and advances by exactly the duration of each
// scheduled buffer. All methods are safe for concurrent use.
type Scheduler struct {
	out audio.OutputContext

	mu      sync.Mutex
	cursor  time.Duration
	playing map[uint64]audio.Voice
	nextID  uint64
}

// NewScheduler returns a Scheduler that plays on out.
func NewScheduler(out audio.OutputContext) *Scheduler {
	return &Scheduler{
		out:     out,
		playing: make(map[uint64]audio.Voice),
	}
}

// Schedule queues buf at max(cursor, clock) and advances the cursor by the
// buffer's duration. It returns the start position and the voice handle. The
// voice is tracked until it finishes or is stopped by [Scheduler.Interrupt].
func (s *Scheduler) Schedule(buf *audio.Buffer) (time.Duration, audio.Voice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := max(s.cursor, s.out.Now())
	v, err := s.out.Schedule(buf, start)
	if err != nil {
		return 0, nil, fmt.Errorf("live: schedule: %w", err)
	}
	s.cursor = start + buf.Duration()

	s.nextID++
	id := s.nextID
	s.playing[id] = v
	go s.track(id, v)
	return start, v, nil
}

// track forgets the voice once it is done. A voice already removed by
// Interrupt is ignored.
func (s *Scheduler) track(id uint64, v audio.Voice) {
	<-v.Done()
	s.mu.Lock()
	delete(s.playing, id)
	s.mu.Unlock()
}

// Interrupt stops every scheduled voice, forgets them and resets the cursor to
// zero so the next buffer starts at the current clock. It returns how many
// voices were stopped.
func (s *Scheduler) Interrupt() int {
	s.mu.Lock()
	voices := s.playing
	s.playing = make(map[uint64]audio.Voice)
	s.cursor = 0
	s.mu.Unlock()

	for _, v := range voices {
		v.Stop()
	}
	return len(voices)
}

// Cursor returns the start position for the next buffer, before clamping to
// the clock.
func (s *Scheduler) Cursor() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// Pending returns the number of voices scheduled and not yet finished.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.playing)
}
