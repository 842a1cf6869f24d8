package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-presence-api/internal/models"
)

type published struct {
	channel string
	body    []byte
}

type pubsubStub struct {
	mu   sync.Mutex
	sent []published
	got  chan struct{}
}

func (p *pubsubStub) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	p.mu.Lock()
	p.sent = append(p.sent, published{channel: channel, body: message.([]byte)})
	p.mu.Unlock()
	p.got <- struct{}{}
	return redis.NewIntResult(1, nil)
}

func (p *pubsubStub) PSubscribe(ctx context.Context, patterns ...string) *redis.PubSub {
	return nil
}

type delivererStub struct {
	events []models.SessionEvent
}

func (d *delivererStub) Deliver(event models.SessionEvent) {
	d.events = append(d.events, event)
}

func TestRelayPublishesOnSessionChannel(t *testing.T) {
	stub := &pubsubStub{got: make(chan struct{}, 1)}
	relay := NewRedisRelay(stub, "att", nil)
	relay.Start(context.Background())
	defer relay.Stop()

	relay.Publish(models.SessionEvent{Kind: models.EventAttendanceMarked, SessionID: "s-7", StudentID: "S1", Period: 1})

	select {
	case <-stub.got:
	case <-time.After(2 * time.Second):
		t.Fatal("event was not published")
	}
	stub.mu.Lock()
	defer stub.mu.Unlock()
	require.Len(t, stub.sent, 1)
	assert.Equal(t, "att:s-7", stub.sent[0].channel)

	var env relayEnvelope
	require.NoError(t, json.Unmarshal(stub.sent[0].body, &env))
	assert.Equal(t, relay.origin, env.Origin)
	assert.Equal(t, "S1", env.Event.StudentID)
}

func TestRelaySkipsItsOwnMessages(t *testing.T) {
	relay := NewRedisRelay(&pubsubStub{got: make(chan struct{}, 1)}, "", nil)
	assert.Equal(t, "presence", relay.prefix)
	deliverer := &delivererStub{}

	own, err := json.Marshal(relayEnvelope{Origin: relay.origin, Event: models.SessionEvent{Kind: models.EventScanStarted, SessionID: "s-1"}})
	require.NoError(t, err)
	relay.handleMessage(string(own), deliverer)
	assert.Empty(t, deliverer.events)

	foreign, err := json.Marshal(relayEnvelope{Origin: "other-node", Event: models.SessionEvent{Kind: models.EventScanStarted, SessionID: "s-1"}})
	require.NoError(t, err)
	relay.handleMessage(string(foreign), deliverer)
	require.Len(t, deliverer.events, 1)
	assert.Equal(t, models.EventScanStarted, deliverer.events[0].Kind)

	relay.handleMessage("not json", deliverer)
	assert.Len(t, deliverer.events, 1)
}
