package checkin

// Texts sent by the sequencer itself.
const (
	CompletionText = "Thanks for the answers!"
	ExpiredText    = "This check-in timed out before it was finished. Send /ask whenever you want to start a new one."
)
