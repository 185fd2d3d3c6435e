package domain

import "context"

type EventRepository interface {
	// Save persists the events of the aggregate identified by id and hands the same batch to
	// the handlers registered for the topic.
	Save(ctx context.Context, topic, id string, events []Event) error
	// Load returns every event stored for the aggregate, oldest first.
	Load(ctx context.Context, topic, id string) ([]Event, error)
	RegisterEventsHandler(topic string, handler func(events []Event))
	ClearRegisteredHandlers(topics ...string)
	Close()
}
