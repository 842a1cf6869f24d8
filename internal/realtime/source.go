package realtime

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"
)

// PresenceSource produces sightings for a session once scanning starts.
// Real radio scanners and the simulator both sit behind this interface.
type PresenceSource interface {
	Start(ctx context.Context, sessionID string, roster []string, emit func(DeviceDiscovered))
	Stop(sessionID string)
}

// SimulatedSource emits one sighting per rostered student at a fixed delay,
// interleaved with devices that resolve to nobody.
type SimulatedSource struct {
	delay      time.Duration
	strayEvery int
	seed       uint64
	logger     *zap.Logger

	mu      sync.Mutex
	running map[string]*simRun
}

type simRun struct {
	cancel context.CancelFunc
}

// NewSimulatedSource builds the synthetic generator.
func NewSimulatedSource(delay time.Duration, logger *zap.Logger) *SimulatedSource {
	if delay <= 0 {
		delay = 2 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SimulatedSource{
		delay:      delay,
		strayEvery: 3,
		seed:       uint64(time.Now().UnixNano()),
		logger:     logger,
		running:    make(map[string]*simRun),
	}
}

// Start begins emitting for sessionID. A second Start for the same session is ignored.
func (s *SimulatedSource) Start(ctx context.Context, sessionID string, roster []string, emit func(DeviceDiscovered)) {
	s.mu.Lock()
	if _, ok := s.running[sessionID]; ok {
		s.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	run := &simRun{cancel: cancel}
	s.running[sessionID] = run
	s.mu.Unlock()

	students := append([]string(nil), roster...)
	rng := rand.New(rand.NewPCG(s.seed, uint64(len(sessionID))))
	rng.Shuffle(len(students), func(i, j int) { students[i], students[j] = students[j], students[i] })

	go func() {
		defer s.finish(sessionID, run)
		ticker := time.NewTicker(s.delay)
		defer ticker.Stop()
		s.logger.Debug("simulated scan started", zap.String("session_id", sessionID), zap.Int("roster", len(students)))

		emitted := 0
		for len(students) > 0 {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
			}
			emitted++
			signal := -40 - rng.IntN(50)
			if s.strayEvery > 0 && emitted%s.strayEvery == 0 {
				emit(DeviceDiscovered{
					SessionID:  sessionID,
					DeviceID:   fmt.Sprintf("stray-%04x", rng.IntN(0xffff)),
					DeviceName: "Unknown device",
					Signal:     signal,
				})
				continue
			}
			student := students[0]
			students = students[1:]
			emit(DeviceDiscovered{
				SessionID:  sessionID,
				DeviceID:   "sim-" + student,
				DeviceName: "Phone of " + student,
				Signal:     signal,
				StudentID:  &student,
			})
		}
	}()
}

// Stop halts the generator for a session.
func (s *SimulatedSource) Stop(sessionID string) {
	s.mu.Lock()
	run, ok := s.running[sessionID]
	delete(s.running, sessionID)
	s.mu.Unlock()
	if ok {
		run.cancel()
	}
}

func (s *SimulatedSource) finish(sessionID string, run *simRun) {
	s.mu.Lock()
	if s.running[sessionID] == run {
		delete(s.running, sessionID)
	}
	s.mu.Unlock()
	run.cancel()
}

// Running reports whether a generator is active for the session.
func (s *SimulatedSource) Running(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.running[sessionID]
	return ok
}
