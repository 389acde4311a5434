package flow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	mu       sync.Mutex
	payloads [][]byte
	failures int // fail this many sends before succeeding; -1 fails forever
}

func (f *fakePublisher) PublishData(ctx context.Context, payload []byte, reliable bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, payload)
	if f.failures == -1 {
		return errors.New("channel send failed")
	}
	if f.failures > 0 {
		f.failures--
		return errors.New("channel send failed")
	}
	return nil
}

func (f *fakePublisher) sent() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payloads)
}

func newTestProtocol(pub Publisher, cfg Config) *Protocol {
	cfg.Stages = DefaultStages()
	cfg.Publisher = pub
	if cfg.Backoff == 0 {
		cfg.Backoff = 5 * time.Millisecond
	}
	if cfg.EndedGrace == 0 {
		cfg.EndedGrace = 30 * time.Millisecond
	}
	return NewProtocol(cfg)
}

func TestPublishRetriesWithLinearBackoffThenGivesUp(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{failures: -1}
	p := newTestProtocol(pub, Config{Retries: 3, Backoff: 10 * time.Millisecond})

	start := time.Now()
	err := p.Publish(context.Background(), ForceReply{Reason: "auto_prompt"})
	elapsed := time.Since(start)

	require.Error(t, err)
	// initial attempt plus three retries
	assert.Equal(t, 4, pub.sent())
	// delays of 10ms, 20ms, 30ms between retries
	assert.GreaterOrEqual(t, elapsed, 60*time.Millisecond)
}

func TestPublishStopsRetryingOnSuccess(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{failures: 1}
	p := newTestProtocol(pub, Config{})

	err := p.Publish(context.Background(), StageAdvance{Stage: "payment"})
	require.NoError(t, err)
	assert.Equal(t, 2, pub.sent())
}

func TestPublishHonorsContextCancellation(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{failures: -1}
	p := newTestProtocol(pub, Config{Backoff: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := p.Publish(ctx, ForceReply{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMalformedPayloadsLeaveStateUnchanged(t *testing.T) {
	t.Parallel()

	p := newTestProtocol(&fakePublisher{}, Config{})
	before := p.StageIndex()

	for _, payload := range []string{
		`not json at all`,
		`42`,
		`{"advance_stage": "yes"}`,
		`{"something": "else"}`,
		``,
	} {
		p.HandlePayload([]byte(payload))
	}

	assert.Equal(t, before, p.StageIndex())
	assert.Empty(t, p.Choice())
	assert.False(t, p.Completed())
}

func TestAdvanceStageKnownAndUnknownKeys(t *testing.T) {
	t.Parallel()

	p := newTestProtocol(&fakePublisher{}, Config{})

	p.HandlePayload([]byte(`{"advance_stage":true,"stage":"kyc"}`))
	assert.Equal(t, 2, p.StageIndex())

	p.HandlePayload([]byte(`{"advance_stage":true,"stage":"no_such_stage"}`))
	assert.Equal(t, 2, p.StageIndex())
}

func TestChoiceRecordedWithoutMovingStage(t *testing.T) {
	t.Parallel()

	p := newTestProtocol(&fakePublisher{}, Config{})

	p.HandlePayload([]byte(`{"payment_choice":"emi","choice_title":"No-Cost EMI"}`))
	assert.Equal(t, "emi", p.Choice())
	assert.Equal(t, 0, p.StageIndex())

	p.HandlePayload([]byte(`{"choice":"full","next_stage":"kyc"}`))
	assert.Equal(t, "full", p.Choice())
	assert.Equal(t, 2, p.StageIndex())
}

func TestSessionEndedFiresImmediatelyAndDisconnectsAfterGrace(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var endedMsg string
	disconnected := make(chan struct{})

	p := newTestProtocol(&fakePublisher{}, Config{
		EndedGrace: 30 * time.Millisecond,
		OnEnded: func(msg string) {
			mu.Lock()
			endedMsg = msg
			mu.Unlock()
		},
		OnDisconnect: func() { close(disconnected) },
	})

	p.HandlePayload([]byte(`{"status":"ended","agent_message":"Thanks!"}`))

	assert.True(t, p.Completed())
	mu.Lock()
	assert.Equal(t, "Thanks!", endedMsg)
	mu.Unlock()

	select {
	case <-disconnected:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("disconnect never fired after grace period")
	}
}

func TestSessionEndedIsIdempotent(t *testing.T) {
	t.Parallel()

	endedCalls := 0
	p := newTestProtocol(&fakePublisher{}, Config{
		OnEnded: func(string) { endedCalls++ },
	})

	p.HandlePayload([]byte(`{"status":"ended"}`))
	p.HandlePayload([]byte(`{"status":"ended"}`))
	assert.Equal(t, 1, endedCalls)
}

func TestAdvanceToNextIsOptimistic(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{failures: -1}
	p := newTestProtocol(pub, Config{Retries: 1})

	p.AdvanceToNext(context.Background())
	// position moved locally even though every publish failed
	assert.Equal(t, 1, p.StageIndex())
	assert.Equal(t, StageKey("payment"), p.CurrentStage().Key)

	p.AdvanceToNext(context.Background())
	p.AdvanceToNext(context.Background()) // already at the last stage
	assert.Equal(t, 2, p.StageIndex())
}

func TestStopCancelsEndedGrace(t *testing.T) {
	t.Parallel()

	p := newTestProtocol(&fakePublisher{}, Config{
		EndedGrace:   20 * time.Millisecond,
		OnDisconnect: func() { t.Error("disconnect fired after Stop") },
	})

	p.HandlePayload([]byte(`{"status":"ended"}`))
	p.Stop()
	time.Sleep(60 * time.Millisecond)
}

func TestEncodeParseRecognizedShapes(t *testing.T) {
	t.Parallel()

	payload, err := Encode(ChoiceSelected{Stage: "payment", Choice: "emi", ChoiceTitle: "No-Cost EMI"})
	require.NoError(t, err)

	m, ok := Parse(payload)
	require.True(t, ok)
	choice, ok := m.(ChoiceSelected)
	require.True(t, ok)
	assert.Equal(t, "emi", choice.Choice)
}
