package realtime

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-presence-api/internal/models"
	"github.com/noah-isme/sma-presence-api/internal/service"
)

// EventPublisher forwards session events to other processes.
type EventPublisher interface {
	Publish(event models.SessionEvent)
}

// peer is one connection. Frames are queued on out and written by a single
// goroutine, so a connection sees frames in the order they were queued.
type peer struct {
	id        string
	principal models.Principal
	out       chan Frame
	done      chan struct{}
	closeOnce sync.Once
}

func newPeer(principal models.Principal, buffer int) *peer {
	if buffer <= 0 {
		buffer = 64
	}
	return &peer{
		id:        uuid.NewString(),
		principal: principal,
		out:       make(chan Frame, buffer),
		done:      make(chan struct{}),
	}
}

// send queues a frame and reports false when it was dropped.
func (p *peer) send(frame Frame) bool {
	select {
	case <-p.done:
		return false
	default:
	}
	select {
	case p.out <- frame:
		return true
	default:
		return false
	}
}

func (p *peer) close() {
	p.closeOnce.Do(func() { close(p.done) })
}

// writeLoop drains the queue into enc until the peer closes or a write fails.
func (p *peer) writeLoop(enc *json.Encoder, onWrite func(Frame)) {
	defer p.close()
	for {
		select {
		case <-p.done:
			return
		case frame := <-p.out:
			if err := enc.Encode(frame); err != nil {
				return
			}
			if onWrite != nil {
				onWrite(frame)
			}
		}
	}
}

// Hub tracks connections and which sessions they observe. It implements
// service.SessionNotifier.
type Hub struct {
	mu        sync.RWMutex
	peers     map[*peer]struct{}
	subs      map[string]map[*peer]struct{}
	publisher EventPublisher
	onClosed  []func(sessionID string)
	metrics   *service.MetricsService
	logger    *zap.Logger
}

// NewHub creates an empty hub.
func NewHub(metrics *service.MetricsService, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		peers:   make(map[*peer]struct{}),
		subs:    make(map[string]map[*peer]struct{}),
		metrics: metrics,
		logger:  logger,
	}
}

// OnSessionClosed registers fn to run whenever a session_closed event is
// delivered, whether it was raised here or relayed from another node.
func (h *Hub) OnSessionClosed(fn func(sessionID string)) {
	h.mu.Lock()
	h.onClosed = append(h.onClosed, fn)
	h.mu.Unlock()
}

// SetPublisher installs the cross-process publisher.
func (h *Hub) SetPublisher(p EventPublisher) {
	h.mu.Lock()
	h.publisher = p
	h.mu.Unlock()
}

func (h *Hub) register(p *peer) {
	h.mu.Lock()
	h.peers[p] = struct{}{}
	h.mu.Unlock()
	h.metrics.AddConnections(1)
}

func (h *Hub) unregister(p *peer) {
	h.mu.Lock()
	if _, ok := h.peers[p]; ok {
		delete(h.peers, p)
		for sessionID, members := range h.subs {
			delete(members, p)
			if len(members) == 0 {
				delete(h.subs, sessionID)
			}
		}
		h.metrics.AddConnections(-1)
	}
	h.mu.Unlock()
	p.close()
}

func (h *Hub) subscribe(p *peer, sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.subs[sessionID]
	if !ok {
		members = make(map[*peer]struct{})
		h.subs[sessionID] = members
	}
	members[p] = struct{}{}
}

// Subscribers reports how many connections observe a session.
func (h *Hub) Subscribers(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[sessionID])
}

// Connections reports the number of open connections.
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.peers)
}

// Notify delivers a locally produced event and hands it to the publisher.
func (h *Hub) Notify(event models.SessionEvent) {
	h.Deliver(event)
	h.mu.RLock()
	publisher := h.publisher
	h.mu.RUnlock()
	if publisher != nil {
		publisher.Publish(event)
	}
}

// Deliver sends an event to the local observers of its session only.
func (h *Hub) Deliver(event models.SessionEvent) {
	msg, ok := eventMessage(event)
	if !ok {
		return
	}
	frame := mustEncode("", msg)

	h.mu.RLock()
	targets := make([]*peer, 0, len(h.subs[event.SessionID]))
	for p := range h.subs[event.SessionID] {
		targets = append(targets, p)
	}
	h.mu.RUnlock()

	for _, p := range targets {
		h.sendTo(p, frame)
	}
	if event.Kind == models.EventSessionClosed {
		h.mu.Lock()
		delete(h.subs, event.SessionID)
		hooks := append([]func(string){}, h.onClosed...)
		h.mu.Unlock()
		for _, fn := range hooks {
			fn(event.SessionID)
		}
	}
}

func (h *Hub) sendTo(p *peer, frame Frame) {
	if !p.send(frame) {
		h.metrics.ObserveDroppedFrame()
		h.logger.Debug("frame dropped", zap.String("peer", p.id), zap.String("type", frame.Type))
	}
}

func eventMessage(event models.SessionEvent) (Message, bool) {
	switch event.Kind {
	case models.EventAttendanceMarked:
		return AttendanceMarked{SessionID: event.SessionID, StudentID: event.StudentID, DeviceID: event.DeviceID, Period: event.Period}, true
	case models.EventScanStarted:
		return ScanStarted{SessionID: event.SessionID, Message: event.Message}, true
	case models.EventScanStopped:
		return ScanStopped{SessionID: event.SessionID, Message: event.Message}, true
	case models.EventDeviceSeen:
		seen := DeviceSeen{SessionID: event.SessionID, DeviceID: event.DeviceID, DeviceName: event.DeviceName, Signal: event.Signal}
		if event.StudentID != "" {
			student := event.StudentID
			seen.StudentID = &student
		}
		return seen, true
	case models.EventSessionClosed:
		return SessionClosed{SessionID: event.SessionID, Status: string(event.Status)}, true
	default:
		return nil, false
	}
}
