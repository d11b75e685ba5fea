package pipeline

import (
    "context"
    "sync"
    "sync/atomic"
    "time"
)

// Scheduler runs RebuildAll on a fixed interval. A tick that arrives while
// the previous run is still going is skipped.
type Scheduler struct {
    p        *Pipeline
    interval time.Duration
    running  atomic.Bool
    runs     sync.WaitGroup
    stop     chan struct{}
    done     chan struct{}
    once     sync.Once
}

func NewScheduler(p *Pipeline, interval time.Duration) *Scheduler {
    return &Scheduler{p: p, interval: interval, stop: make(chan struct{}), done: make(chan struct{})}
}

// Start launches the ticker loop. When immediate is set the first run starts at once.
func (s *Scheduler) Start(ctx context.Context, immediate bool) {
    go func() {
        defer close(s.done)
        ticker := time.NewTicker(s.interval)
        defer ticker.Stop()
        if immediate { s.tick(ctx) }
        for {
            select {
            case <-s.stop:
                return
            case <-ctx.Done():
                return
            case <-ticker.C:
                s.tick(ctx)
            }
        }
    }()
}

// Stop ends the loop and waits for it and any rebuild it started to exit.
func (s *Scheduler) Stop() {
    s.once.Do(func() { close(s.stop) })
    <-s.done
    s.runs.Wait()
}

// tick starts a run in the background unless one is in flight.
func (s *Scheduler) tick(ctx context.Context) bool {
    if !s.running.CompareAndSwap(false, true) {
        s.p.log.Warn().Msg("previous scheduled rebuild still running; skipping tick")
        return false
    }
    s.runs.Add(1)
    go func() {
        defer s.runs.Done()
        defer s.running.Store(false)
        results, err := s.p.RebuildAll(ctx)
        ev := s.p.log.Info()
        if err != nil { ev = s.p.log.Error().Err(err) }
        ev.Int("succeeded", len(results)).Int("categories", len(s.p.cats)).Msg("scheduled rebuild finished")
    }()
    return true
}
