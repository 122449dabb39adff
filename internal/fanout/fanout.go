// Package fanout defines the wire envelope the match actor broadcasts and a
// pull-based Subscriber abstraction that transport adapters (SSE,
// WebSocket) drain, so the actor never couples to a transport.
package fanout

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
)

// EventType discriminates an Envelope.
type EventType string

const (
	EventState        EventType = "state"
	EventEngineEvents EventType = "engine_events"
	EventYourTurn     EventType = "your_turn"
	EventGameEnded    EventType = "game_ended"
	EventAgentThought EventType = "agent_thought"
)

// Envelope is the event-typed wire shape delivered to subscribers of a
// match's live stream.
type Envelope struct {
	EventVersion  int             `json:"eventVersion"`
	Event         EventType       `json:"event"`
	MatchID       string          `json:"matchId"`
	State         json.RawMessage `json:"state,omitempty"`
	StateVersion  int64           `json:"stateVersion,omitempty"`
	AgentID       string          `json:"agentId,omitempty"`
	MoveID        string          `json:"moveId,omitempty"`
	Move          json.RawMessage `json:"move,omitempty"`
	EngineEvents  []json.RawMessage `json:"engineEvents,omitempty"`
	Winner        *string         `json:"winner,omitempty"`
	Reason        string          `json:"reason,omitempty"`
	FinalStateVersion int64       `json:"finalStateVersion,omitempty"`
	Ts            int64           `json:"ts,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
}

// ErrBackpressure is the error a Subscriber returns to its owner when it has
// fallen behind and been disconnected.
var ErrBackpressure = errors.New("fanout: subscriber disconnected for backpressure")

// ErrClosed is returned by Next once a subscriber's stream has ended
// (the match ended, or the subscriber was explicitly closed).
var ErrClosed = errors.New("fanout: subscriber closed")

// Subscriber is a single-pass, pull-based live event consumer:
// next() -> Event | end, per the fan-out design.
type Subscriber struct {
	agentID string // empty for spectators
	ch      chan Envelope
	done    chan struct{}
	once    sync.Once
	dropped bool
	mu      sync.Mutex
}

// NewSubscriber allocates a subscriber with a bounded backlog. agentID may
// be empty for an unauthenticated spectator.
func NewSubscriber(agentID string, backlog int) *Subscriber {
	if backlog <= 0 {
		backlog = 256
	}
	return &Subscriber{
		agentID: agentID,
		ch:      make(chan Envelope, backlog),
		done:    make(chan struct{}),
	}
}

// AgentID returns the authenticated agent this subscriber filters
// your_turn events for, or "" for a spectator.
func (s *Subscriber) AgentID() string { return s.agentID }

// Prime delivers env directly to this subscriber, used by the owning actor
// to hand a fresh subscriber its initial state snapshot before any
// broadcast could race it.
func (s *Subscriber) Prime(env Envelope) {
	s.deliver(env)
}

// deliver enqueues env for this subscriber, non-blocking. If the backlog is
// full the subscriber is marked dropped and future delivers are no-ops;
// the publisher must never block on a slow subscriber.
func (s *Subscriber) deliver(env Envelope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dropped {
		return
	}
	select {
	case s.ch <- env:
	default:
		s.dropped = true
		s.closeLocked()
	}
}

// Next blocks until the next envelope is available, the subscriber is
// closed, or ctx is done. Returns ErrBackpressure if the subscriber was
// dropped for falling behind, ErrClosed if the stream ended normally.
func (s *Subscriber) Next(ctx context.Context) (Envelope, error) {
	select {
	case env, ok := <-s.ch:
		if ok {
			return env, nil
		}
		s.mu.Lock()
		dropped := s.dropped
		s.mu.Unlock()
		if dropped {
			return Envelope{}, ErrBackpressure
		}
		return Envelope{}, ErrClosed
	case <-s.done:
		select {
		case env, ok := <-s.ch:
			if ok {
				return env, nil
			}
		default:
		}
		s.mu.Lock()
		dropped := s.dropped
		s.mu.Unlock()
		if dropped {
			return Envelope{}, ErrBackpressure
		}
		return Envelope{}, ErrClosed
	case <-ctx.Done():
		return Envelope{}, ctx.Err()
	}
}

// Close ends this subscriber's stream. Safe to call multiple times and
// concurrently with deliver.
func (s *Subscriber) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
}

func (s *Subscriber) closeLocked() {
	s.once.Do(func() {
		close(s.done)
	})
}

// Hub fans a single match's envelopes out to all live subscribers in order,
// never blocking on a slow one. One Hub per match actor.
type Hub struct {
	mu   sync.Mutex
	subs map[*Subscriber]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[*Subscriber]struct{})}
}

// Subscribe registers sub and returns an unsubscribe function.
func (h *Hub) Subscribe(sub *Subscriber) (unsubscribe func()) {
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	return func() {
		h.mu.Lock()
		delete(h.subs, sub)
		h.mu.Unlock()
	}
}

// Broadcast delivers env to every subscriber, applying the your_turn
// visibility rule: only the subscriber whose agentId matches env.AgentID
// receives a your_turn event; spectators and other agents do not.
func (h *Hub) Broadcast(env Envelope) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		if env.Event == EventYourTurn && sub.agentID != env.AgentID {
			continue
		}
		sub.deliver(env)
	}
}

// CloseAll terminates every live subscriber, e.g. once a match ends and its
// actor's grace period elapses.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		sub.Close()
	}
	h.subs = make(map[*Subscriber]struct{})
}
