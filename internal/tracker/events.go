package tracker

import "github.com/johnnydevriese/glucose-agent/internal/domain"

// Event is an outbound pipeline result a transport delivers to the client.
type Event interface {
	// Type is the wire discriminator for the event.
	Type() string
}

// MessageEvent is a plain chat message: a conversational reply, a
// validation rejection, or a recoverable error explanation.
type MessageEvent struct {
	Text string
}

func (MessageEvent) Type() string { return "message" }

// ReadingExtractedEvent announces an extracted reading awaiting the user's
// confirmation. ReadingID identifies the pending candidate; the reading
// itself carries no persistent ID yet.
type ReadingExtractedEvent struct {
	ReadingID string
	Reading   domain.Reading
}

func (ReadingExtractedEvent) Type() string { return "reading_extracted" }

// HistoryEvent carries a session's confirmed readings.
type HistoryEvent struct {
	Readings []domain.Reading
}

func (HistoryEvent) Type() string { return "history_update" }

// StatsEvent carries a session's derived statistics.
type StatsEvent struct {
	Stats domain.Statistics
}

func (StatsEvent) Type() string { return "stats_update" }
