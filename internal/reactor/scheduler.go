package reactor

import (
	"sync"
	"time"
)

// Ticker is anything the scheduler can drive. *Core satisfies it.
type Ticker interface {
	ID() ReactorID
	Tick() TickReport
}

// Scheduler runs registered cores on their own periodic tickers.
type Scheduler struct {
	mu      sync.Mutex
	handles map[*Handle]struct{}
	wg      sync.WaitGroup
	closed  bool
	logger  Logger
	onTick  func(TickReport)
}

// Handle is one periodic registration. Releasing it stops the ticks.
type Handle struct {
	s      *Scheduler
	id     ReactorID
	period time.Duration
	stopCh chan struct{}
	once   sync.Once
}

// NewScheduler creates an empty scheduler. onTick, when not nil, receives
// every report produced by a scheduled tick.
func NewScheduler(logger Logger, onTick func(TickReport)) *Scheduler {
	if logger == nil {
		logger = NewNoOpLogger()
	}
	return &Scheduler{
		handles: make(map[*Handle]struct{}),
		logger:  logger,
		onTick:  onTick,
	}
}

// Register starts ticking t every period in its own goroutine. It returns nil
// if the scheduler is closed or period is not positive.
func (s *Scheduler) Register(t Ticker, period time.Duration) *Handle {
	if period <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}

	h := &Handle{s: s, id: t.ID(), period: period, stopCh: make(chan struct{})}
	s.handles[h] = struct{}{}
	s.wg.Add(1)

	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(period)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				// a release racing the tick wins
				select {
				case <-h.stopCh:
					return
				default:
				}
				report := t.Tick()
				if s.onTick != nil && !report.Skipped {
					s.onTick(report)
				}
			case <-h.stopCh:
				return
			}
		}
	}()
	s.logger.Debugf("scheduled reactor %s every %s", h.id, period)
	return h
}

// ReactorID returns the id of the scheduled core.
func (h *Handle) ReactorID() ReactorID {
	return h.id
}

// Period returns the tick interval.
func (h *Handle) Period() time.Duration {
	return h.period
}

// Release stops the ticks. It does not wait for an in-flight tick, so it is
// safe to call from inside one. Calling it more than once is a no-op.
func (h *Handle) Release() {
	if h == nil {
		return
	}
	h.once.Do(func() {
		close(h.stopCh)
		h.s.mu.Lock()
		delete(h.s.handles, h)
		h.s.mu.Unlock()
		h.s.logger.Debugf("released schedule for reactor %s", h.id)
	})
}

// Len returns the number of live handles.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handles)
}

// Close releases every handle and waits for their goroutines to exit. It must
// not be called from a scheduled tick.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	handles := make([]*Handle, 0, len(s.handles))
	for h := range s.handles {
		handles = append(handles, h)
	}
	s.mu.Unlock()

	for _, h := range handles {
		h.Release()
	}
	s.wg.Wait()
}
