package transcript

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MahammadWahab540/fullstackvoice/internal/rtc"
)

func TestAccumulatorMergesBatchesIntoSingleUtterance(t *testing.T) {
	t.Parallel()

	acc := NewAccumulator("me")
	acc.OnSegments([]rtc.TranscriptSegment{{Text: "Hel"}, {Text: "lo"}}, "agent")
	acc.OnSegments([]rtc.TranscriptSegment{{Text: " there", Final: true}}, "agent")

	got := acc.Utterances()
	require.Len(t, got, 1)
	assert.Equal(t, "Hello there", got[0].Text)
	assert.True(t, got[0].IsFinal)
	assert.Equal(t, RoleAgent, got[0].Role)
}

func TestAccumulatorStartsNewUtteranceAfterFinal(t *testing.T) {
	t.Parallel()

	acc := NewAccumulator("me")
	acc.OnSegments([]rtc.TranscriptSegment{{Text: "first", Final: true}}, "agent")
	acc.OnSegments([]rtc.TranscriptSegment{{Text: "second"}}, "agent")

	got := acc.Utterances()
	require.Len(t, got, 2)
	assert.True(t, got[0].IsFinal)
	assert.Equal(t, "second", got[1].Text)
	assert.False(t, got[1].IsFinal)
}

func TestAccumulatorKeepsSpeakersSeparate(t *testing.T) {
	t.Parallel()

	acc := NewAccumulator("me")
	acc.OnSegments([]rtc.TranscriptSegment{{Text: "hi "}}, "me")
	acc.OnSegments([]rtc.TranscriptSegment{{Text: "hello "}}, "agent")
	acc.OnSegments([]rtc.TranscriptSegment{{Text: "there"}}, "me")

	got := acc.Utterances()
	require.Len(t, got, 2)
	assert.Equal(t, RoleUser, got[0].Role)
	assert.Equal(t, "hi there", got[0].Text)
	assert.Equal(t, "hello ", got[1].Text)
}

func TestAccumulatorAgentFinalHook(t *testing.T) {
	t.Parallel()

	acc := NewAccumulator("me")
	var fired []Utterance
	acc.OnAgentFinal = func(u Utterance) { fired = append(fired, u) }

	acc.OnSegments([]rtc.TranscriptSegment{{Text: "user done", Final: true}}, "me")
	acc.OnSegments([]rtc.TranscriptSegment{{Text: "agent done", Final: true}}, "agent")

	require.Len(t, fired, 1)
	assert.Equal(t, "agent done", fired[0].Text)
}

func TestAccumulatorIgnoresEmptyBatch(t *testing.T) {
	t.Parallel()

	acc := NewAccumulator("me")
	acc.OnSegments(nil, "agent")
	assert.Empty(t, acc.Utterances())
}
