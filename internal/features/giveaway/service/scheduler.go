package service

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const DefaultRefreshInterval = 30 * time.Second

// Scheduler owns every timer handle in the process: one optional one-shot
// end timer plus one optional repeating refresh per giveaway id. It holds
// no durable state; restart resilience comes from the engine replaying
// persisted deadlines through Schedule/ScheduleRefresh at startup.
type Scheduler struct {
	clock           Clock
	refreshInterval time.Duration
	onEnd           func(giveawayID string)
	onRefresh       func(giveawayID string) error
	log             zerolog.Logger

	mu           sync.Mutex
	endTimers    map[string]*time.Timer
	refreshStops map[string]chan struct{}
	stopped      bool
	wg           sync.WaitGroup
}

func NewScheduler(clock Clock, refreshInterval time.Duration, onEnd func(string), onRefresh func(string) error, log zerolog.Logger) *Scheduler {
	if refreshInterval <= 0 {
		refreshInterval = DefaultRefreshInterval
	}
	return &Scheduler{
		clock:           clock,
		refreshInterval: refreshInterval,
		onEnd:           onEnd,
		onRefresh:       onRefresh,
		log:             log,
		endTimers:       make(map[string]*time.Timer),
		refreshStops:    make(map[string]chan struct{}),
	}
}

// Schedule arms a one-shot end action at max(0, endTime-now). A deadline
// already in the past (recovery after downtime) fires immediately instead
// of being skipped. Rescheduling the same id replaces the previous timer.
func (s *Scheduler) Schedule(giveawayID string, endTime time.Time) {
	delay := endTime.Sub(s.clock.Now())
	if delay < 0 {
		delay = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if timer, ok := s.endTimers[giveawayID]; ok {
		timer.Stop()
	}
	s.endTimers[giveawayID] = time.AfterFunc(delay, func() {
		s.fireEnd(giveawayID)
	})
	s.log.Debug().Str("giveaway_id", giveawayID).Dur("delay", delay).Msg("End action scheduled")
}

func (s *Scheduler) fireEnd(giveawayID string) {
	s.mu.Lock()
	delete(s.endTimers, giveawayID)
	s.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Str("giveaway_id", giveawayID).Interface("panic", r).
				Msg("Panic in scheduled end action")
		}
	}()
	s.onEnd(giveawayID)
}

// ScheduleRefresh arms the repeating refresh action for the giveaway.
// Idempotent: a second call for the same id replaces the existing timer
// rather than creating a duplicate.
func (s *Scheduler) ScheduleRefresh(giveawayID string) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	if stop, ok := s.refreshStops[giveawayID]; ok {
		close(stop)
	}
	stop := make(chan struct{})
	s.refreshStops[giveawayID] = stop
	s.mu.Unlock()

	s.wg.Add(1)
	go s.refreshLoop(giveawayID, stop)
}

func (s *Scheduler) refreshLoop(giveawayID string, stop chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			err := s.runRefresh(giveawayID)
			if err == nil {
				continue
			}
			if errors.Is(err, errStopRefresh) {
				s.log.Warn().Str("giveaway_id", giveawayID).
					Msg("Refresh target gone, cancelling repeating refresh")
				s.cancel(giveawayID, stop)
				return
			}
			// Transient failure: log and retry on the next tick. A failed
			// refresh must never take down other giveaways' timers.
			s.log.Error().Err(err).Str("giveaway_id", giveawayID).Msg("Refresh action failed")
		}
	}
}

func (s *Scheduler) runRefresh(giveawayID string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Str("giveaway_id", giveawayID).Interface("panic", r).
				Msg("Panic in refresh action")
			err = nil
		}
	}()
	return s.onRefresh(giveawayID)
}

// Cancel stops and removes both the one-shot end timer and the repeating
// refresh for the giveaway. Safe to call when neither exists.
func (s *Scheduler) Cancel(giveawayID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if timer, ok := s.endTimers[giveawayID]; ok {
		timer.Stop()
		delete(s.endTimers, giveawayID)
	}
	if stop, ok := s.refreshStops[giveawayID]; ok {
		close(stop)
		delete(s.refreshStops, giveawayID)
	}
}

// cancel removes the refresh entry only if it still maps to the loop's own
// stop channel, so a replacement scheduled meanwhile is left alone.
func (s *Scheduler) cancel(giveawayID string, stop chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.refreshStops[giveawayID]; ok && current == stop {
		delete(s.refreshStops, giveawayID)
	}
}

// Stop halts every timer and waits for in-flight refresh loops to drain.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	for id, timer := range s.endTimers {
		timer.Stop()
		delete(s.endTimers, id)
	}
	for id, stop := range s.refreshStops {
		close(stop)
		delete(s.refreshStops, id)
	}
	s.mu.Unlock()

	s.wg.Wait()
}
