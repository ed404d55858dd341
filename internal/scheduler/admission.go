package scheduler

import (
	"context"
	"time"
)

// admit reserves a queue slot and then a sequence slot. Returns a release
// func to be deferred.
func (s *Scheduler) admit(ctx context.Context) (func(), error) {
	s.mu.RLock()
	draining := s.draining
	s.mu.RUnlock()
	if draining {
		return func() {}, tooBusyError{reason: "draining"}
	}

	// Fast path: respect an already-canceled context
	if err := ctx.Err(); err != nil {
		return func() {}, err
	}

	// Reserve a queue slot with timeout.
	timer := time.NewTimer(s.cfg.MaxWait)
	defer timer.Stop()
	select {
	case s.queueCh <- struct{}{}:
	case <-ctx.Done():
		return func() {}, ctx.Err()
	case <-timer.C:
		return func() {}, tooBusyError{reason: "queue full"}
	}

	// Wait for a sequence slot. MaxWait applies here too: holding a queue
	// position does not exempt a request from the admission deadline, so a
	// queued request is still rejected when slots stay occupied past it.
	acquired := false
	defer func() {
		if !acquired {
			<-s.queueCh
		}
	}()
	if err := ctx.Err(); err != nil {
		return func() {}, err
	}
	timer2 := time.NewTimer(s.cfg.MaxWait)
	defer timer2.Stop()
	select {
	case s.slotCh <- struct{}{}:
		acquired = true
		return func() { <-s.slotCh; <-s.queueCh }, nil
	case <-ctx.Done():
		return func() {}, ctx.Err()
	case <-timer2.C:
		return func() {}, tooBusyError{reason: "no free sequence slot"}
	}
}
