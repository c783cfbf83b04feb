package worker

import (
	"context"
	"sync"
	"time"
)

// Mode — режим цикла воркера.
type Mode string

const (
	// ModeScan — воркер опрашивает хранилище на каждом цикле.
	ModeScan Mode = "scan"

	// ModeSleep — воркер не трогает хранилище до дедлайна или wake.
	ModeSleep Mode = "sleep"
)

// RunState — состояние цикла воркера на время жизни процесса.
//
// Меняется только через методы: циклом воркера (RequestSleep, Wait)
// и внешними триггерами (Wake, RequestStop) из любых горутин.
type RunState struct {
	ceiling time.Duration
	now     func() time.Time

	mu       sync.Mutex
	mode     Mode
	deadline time.Time
	stop     bool

	// kick будит Wait; буфер 1, лишние сигналы схлопываются.
	kick chan struct{}
}

// NewRunState создаёт RunState в режиме scan.
// ceiling — верхняя граница любого idle-sleep.
func NewRunState(ceiling time.Duration) *RunState {
	return &RunState{
		ceiling: ceiling,
		now:     time.Now,
		mode:    ModeScan,
		kick:    make(chan struct{}, 1),
	}
}

// RequestSleep переводит воркер в idle-sleep до now + min(d, ceiling).
// d <= 0 означает "спать до потолка". Возвращает дедлайн.
func (s *RunState) RequestSleep(d time.Duration) time.Time {
	if d <= 0 || d > s.ceiling {
		d = s.ceiling
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Старый сигнал не должен прервать новый сон.
	select {
	case <-s.kick:
	default:
	}

	s.mode = ModeSleep
	s.deadline = s.now().Add(d)
	return s.deadline
}

// Wake прерывает idle-sleep. В режиме scan ничего не делает.
// Возвращает true, если сон был прерван.
func (s *RunState) Wake() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mode != ModeSleep {
		return false
	}
	s.mode = ModeScan
	s.deadline = time.Time{}
	s.signal()
	return true
}

// RequestStop выставляет флаг остановки и прерывает сон.
func (s *RunState) RequestStop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stop = true
	s.signal()
}

// StopRequested возвращает true после RequestStop.
func (s *RunState) StopRequested() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stop
}

// Sleeping возвращает true в режиме sleep.
func (s *RunState) Sleeping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode == ModeSleep
}

// Snapshot возвращает режим и дедлайн текущего сна (нулевой в режиме scan).
func (s *RunState) Snapshot() (Mode, time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode, s.deadline, s.stop
}

// Wait блокируется, пока не истечёт дедлайн сна, не придёт wake/stop
// или не отменится ctx. В режиме scan возвращается сразу.
func (s *RunState) Wait(ctx context.Context) error {
	s.mu.Lock()
	if s.mode != ModeSleep || s.stop {
		s.mu.Unlock()
		return nil
	}
	remaining := s.deadline.Sub(s.now())
	s.mu.Unlock()

	if remaining > 0 {
		timer := time.NewTimer(remaining)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.kick:
		case <-timer.C:
		}
	}

	s.mu.Lock()
	s.mode = ModeScan
	s.deadline = time.Time{}
	s.mu.Unlock()
	return nil
}

// signal вызывается под s.mu.
func (s *RunState) signal() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}
