package domain

// RecordingState voice recorder state
type RecordingState int

const (
	// RecordingIdle no capture in progress
	RecordingIdle RecordingState = iota
	// RecordingActive capturing while the press is held
	RecordingActive
	// RecordingCancelling capturing, release will discard
	RecordingCancelling
	// RecordingLocked capturing hands-free, release does not stop
	RecordingLocked
)

func (s RecordingState) String() string {
	switch s {
	case RecordingActive:
		return "recording"
	case RecordingCancelling:
		return "cancelling"
	case RecordingLocked:
		return "locked"
	default:
		return "idle"
	}
}

// Capturing reports whether the microphone is in use.
func (s RecordingState) Capturing() bool {
	return s != RecordingIdle
}

// ReleaseOutcome what a press release did
type ReleaseOutcome int

const (
	// ReleaseIgnored nothing was recording
	ReleaseIgnored ReleaseOutcome = iota
	// ReleaseSent capture finalized and sent
	ReleaseSent
	// ReleaseDiscarded capture dropped
	ReleaseDiscarded
	// ReleaseKeptLocked still recording
	ReleaseKeptLocked
)
