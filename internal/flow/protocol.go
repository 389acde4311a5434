package flow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/MahammadWahab540/fullstackvoice/internal/metrics"
)

// Publisher sends one payload over the reliable control channel.
// rtc.Room satisfies it.
type Publisher interface {
	PublishData(ctx context.Context, payload []byte, reliable bool) error
}

const (
	defaultRetries    = 3
	defaultBackoff    = 1500 * time.Millisecond
	defaultEndedGrace = 3 * time.Second
)

// Config wires a Protocol.
type Config struct {
	Stages    Stages
	Publisher Publisher

	// Retries is the number of publish retries after a failed first
	// attempt; retry k is preceded by a Backoff×k delay.
	Retries int
	Backoff time.Duration

	// EndedGrace is the delay between a session-ended message and
	// OnDisconnect, allowing a final agent message to render.
	EndedGrace time.Duration

	// OnEnded is invoked immediately when the agent ends the flow.
	OnEnded func(agentMessage string)
	// OnDisconnect is invoked once EndedGrace has elapsed.
	OnDisconnect func()
	// OnStageChange is invoked whenever the stage position moves.
	OnStageChange func(Stage)
}

// Protocol tracks the ordinal position in the fixed stage sequence and
// exchanges control messages over the reliable channel. Inbound handling
// never propagates errors: a malformed remote payload must not take down
// the local session.
type Protocol struct {
	cfg Config

	mu       sync.Mutex
	idx      int
	choice   string
	complete bool
	grace    *time.Timer
}

// NewProtocol creates a protocol positioned at the first stage.
func NewProtocol(cfg Config) *Protocol {
	if cfg.Retries <= 0 {
		cfg.Retries = defaultRetries
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = defaultBackoff
	}
	if cfg.EndedGrace <= 0 {
		cfg.EndedGrace = defaultEndedGrace
	}
	return &Protocol{cfg: cfg}
}

// CurrentStage returns the stage at the current ordinal position.
func (p *Protocol) CurrentStage() Stage {
	p.mu.Lock()
	defer p.mu.Unlock()
	st, _ := p.cfg.Stages.At(p.idx)
	return st
}

// StageIndex returns the current ordinal position.
func (p *Protocol) StageIndex() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.idx
}

// Choice returns the recorded active selection, if any.
func (p *Protocol) Choice() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.choice
}

// Completed reports whether the agent has ended the flow.
func (p *Protocol) Completed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.complete
}

// Publish sends a message with bounded retry. After a failed attempt the
// k-th retry waits Backoff×k; once retries are exhausted the message is
// abandoned with a logged warning rather than blocking the caller forever.
func (p *Protocol) Publish(ctx context.Context, m Message) error {
	payload, err := Encode(m)
	if err != nil {
		return err
	}

	err = p.cfg.Publisher.PublishData(ctx, payload, true)
	if err == nil {
		metrics.ControlMessages.WithLabelValues("out", m.messageType()).Inc()
		return nil
	}

	for attempt := 1; attempt <= p.cfg.Retries; attempt++ {
		metrics.PublishRetries.Inc()
		select {
		case <-time.After(p.cfg.Backoff * time.Duration(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}

		err = p.cfg.Publisher.PublishData(ctx, payload, true)
		if err == nil {
			metrics.ControlMessages.WithLabelValues("out", m.messageType()).Inc()
			return nil
		}
	}

	metrics.PublishAbandoned.Inc()
	slog.Warn("control publish abandoned", "type", m.messageType(), "error", err)
	return err
}

// PublishInitialStage announces the first stage to the agent.
func (p *Protocol) PublishInitialStage(ctx context.Context) error {
	return p.Publish(ctx, StageAdvance{Stage: p.cfg.Stages.First().Key})
}

// AdvanceToNext optimistically moves to the next stage and publishes the
// advance, so the local UI never waits on a round trip.
func (p *Protocol) AdvanceToNext(ctx context.Context) {
	p.mu.Lock()
	next, ok := p.cfg.Stages.At(p.idx + 1)
	if ok {
		p.idx = next.Ordinal
	}
	p.mu.Unlock()

	if !ok {
		return
	}
	p.notifyStage(next)
	p.Publish(ctx, StageAdvance{Stage: next.Key})
}

// SelectChoice records a structured choice locally and publishes it. The
// choice does not move the stage unless nextStage names a known stage.
func (p *Protocol) SelectChoice(ctx context.Context, choice, title string, nextStage StageKey) {
	p.mu.Lock()
	p.choice = choice
	stage, _ := p.cfg.Stages.At(p.idx)
	moved, movedOK := p.moveToLocked(nextStage)
	p.mu.Unlock()

	if movedOK {
		p.notifyStage(moved)
	}
	p.Publish(ctx, ChoiceSelected{Stage: stage.Key, Choice: choice, ChoiceTitle: title, NextStage: nextStage})
}

// RequestReply publishes a forced-reply nudge.
func (p *Protocol) RequestReply(ctx context.Context, reason string) {
	p.Publish(ctx, ForceReply{Reason: reason})
}

// HandlePayload processes one inbound control-channel payload. Malformed
// and unrecognized payloads are swallowed and logged.
func (p *Protocol) HandlePayload(payload []byte) {
	m, ok := Parse(payload)
	if !ok {
		metrics.ControlMalformed.Inc()
		slog.Warn("unrecognized control payload", "size", len(payload))
		return
	}
	metrics.ControlMessages.WithLabelValues("in", m.messageType()).Inc()

	switch msg := m.(type) {
	case SessionEnded:
		p.handleEnded(msg)
	case StageAdvance:
		p.handleAdvance(msg.Stage)
	case ChoiceSelected:
		p.mu.Lock()
		p.choice = msg.Choice
		p.mu.Unlock()
		if msg.NextStage != "" {
			p.handleAdvance(msg.NextStage)
		}
	case ForceReply:
		// agent-side concept; nothing to do locally
	}
}

// Stop cancels the pending ended-grace timer, if any.
func (p *Protocol) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.grace != nil {
		p.grace.Stop()
		p.grace = nil
	}
}

func (p *Protocol) handleEnded(msg SessionEnded) {
	p.mu.Lock()
	already := p.complete
	p.complete = true
	if !already {
		if p.grace != nil {
			p.grace.Stop()
		}
		p.grace = time.AfterFunc(p.cfg.EndedGrace, func() {
			if cb := p.cfg.OnDisconnect; cb != nil {
				cb()
			}
		})
	}
	p.mu.Unlock()

	if already {
		return
	}
	slog.Info("flow complete", "agent_message", msg.AgentMessage)
	if cb := p.cfg.OnEnded; cb != nil {
		cb(msg.AgentMessage)
	}
}

func (p *Protocol) handleAdvance(key StageKey) {
	p.mu.Lock()
	st, ok := p.moveToLocked(key)
	p.mu.Unlock()

	if !ok {
		slog.Warn("unknown stage key ignored", "stage", key)
		return
	}
	p.notifyStage(st)
}

func (p *Protocol) moveToLocked(key StageKey) (Stage, bool) {
	if key == "" {
		return Stage{}, false
	}
	ord, ok := p.cfg.Stages.OrdinalOf(key)
	if !ok {
		return Stage{}, false
	}
	p.idx = ord
	st, _ := p.cfg.Stages.At(ord)
	return st, true
}

func (p *Protocol) notifyStage(st Stage) {
	if cb := p.cfg.OnStageChange; cb != nil {
		cb(st)
	}
}
