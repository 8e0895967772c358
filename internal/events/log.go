package events

import "github.com/rs/zerolog"

// LogPublisher writes every event as one structured log line.
type LogPublisher struct {
	log zerolog.Logger
}

func NewLogPublisher(log zerolog.Logger) *LogPublisher {
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Publish(e Event) {
	ev := p.log.Info().Str("event", e.Name).Str("event_id", e.ID)
	if e.ModelID != "" {
		ev = ev.Str("model", e.ModelID)
	}
	for k, v := range e.Fields {
		ev = ev.Interface(k, v)
	}
	ev.Msg("fleet event")
}
