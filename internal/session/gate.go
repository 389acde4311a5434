package session

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/MahammadWahab540/fullstackvoice/internal/rtc"
)

// Readiness is the outcome of the readiness gate.
type Readiness struct {
	ParticipantActive bool
}

// awaitReady consumes room events until the reliable control channel is open
// and the local participant is active, or the timeout elapses. The channel
// never opening is a hard failure; a missing participant activation only
// degrades to ParticipantActive=false, because some backends mark activation
// late. Events that are not readiness signals are handed to forward so none
// are lost while the gate runs.
func awaitReady(events <-chan rtc.Event, timeout time.Duration, forward func(rtc.Event)) (Readiness, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	var channelOpen, participantActive bool
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return Readiness{}, &ConnectError{Err: fmt.Errorf("room closed while waiting for readiness")}
			}
			switch ev.Kind {
			case rtc.EventChannelOpen:
				channelOpen = true
			case rtc.EventParticipantActive:
				participantActive = true
			default:
				forward(ev)
			}
			if channelOpen && participantActive {
				return Readiness{ParticipantActive: true}, nil
			}

		case <-deadline.C:
			if !channelOpen {
				return Readiness{}, &ChannelTimeoutError{Timeout: timeout}
			}
			slog.Warn("participant activation timed out, proceeding optimistically", "timeout", timeout)
			return Readiness{ParticipantActive: false}, nil
		}
	}
}
