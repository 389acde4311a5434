// Package transcript merges streaming partial-transcript segments into
// per-speaker utterances.
package transcript

import (
	"sync"

	"github.com/MahammadWahab540/fullstackvoice/internal/rtc"
)

// Role classifies an utterance speaker.
type Role int

const (
	RoleUser Role = iota
	RoleAgent
)

func (r Role) String() string {
	if r == RoleAgent {
		return "agent"
	}
	return "user"
}

// Utterance is a contiguous, possibly still-growing unit of transcribed
// speech attributed to one speaker. Text is append-only.
type Utterance struct {
	SpeakerID string
	Role      Role
	Text      string
	IsFinal   bool
}

// Accumulator merges segment batches into utterances. At most one non-final
// utterance exists per speaker at any time: a new segment appends to the
// open utterance for its speaker, or starts a new one if the prior was
// final.
type Accumulator struct {
	mu         sync.Mutex
	localID    string
	utterances []Utterance
	open       map[string]int // speaker ID -> index into utterances

	// OnAgentFinal, when set, is invoked after an agent utterance is
	// finalized. The session controller uses it to reset the
	// thinking-fallback timer.
	OnAgentFinal func(u Utterance)
}

// NewAccumulator creates an accumulator. Segments from localID are
// attributed to RoleUser; all other speakers are RoleAgent.
func NewAccumulator(localID string) *Accumulator {
	return &Accumulator{
		localID: localID,
		open:    make(map[string]int),
	}
}

// OnSegments merges one inbound batch for a speaker. All segment text is
// appended in order; if any segment in the batch is final, the utterance
// becomes final.
func (a *Accumulator) OnSegments(segments []rtc.TranscriptSegment, speakerID string) {
	if len(segments) == 0 {
		return
	}

	a.mu.Lock()

	idx, ok := a.open[speakerID]
	if !ok {
		role := RoleAgent
		if speakerID == a.localID {
			role = RoleUser
		}
		a.utterances = append(a.utterances, Utterance{SpeakerID: speakerID, Role: role})
		idx = len(a.utterances) - 1
		a.open[speakerID] = idx
	}

	u := &a.utterances[idx]
	for _, seg := range segments {
		u.Text += seg.Text
		if seg.Final {
			u.IsFinal = true
		}
	}

	var finalized *Utterance
	if u.IsFinal {
		delete(a.open, speakerID)
		cp := *u
		finalized = &cp
	}
	cb := a.OnAgentFinal
	a.mu.Unlock()

	if finalized != nil && finalized.Role == RoleAgent && cb != nil {
		cb(*finalized)
	}
}

// Utterances returns a snapshot of all accumulated utterances in order.
func (a *Accumulator) Utterances() []Utterance {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Utterance, len(a.utterances))
	copy(out, a.utterances)
	return out
}

// Last returns the most recent utterance for the speaker, open or final.
func (a *Accumulator) Last(speakerID string) (Utterance, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := len(a.utterances) - 1; i >= 0; i-- {
		if a.utterances[i].SpeakerID == speakerID {
			return a.utterances[i], true
		}
	}
	return Utterance{}, false
}
