package watermilldb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/lib/pq"
	log "github.com/sirupsen/logrus"
	"github.com/zyfty/zyftyd/internal/core/domain"
)

// undefined_table, returned when no message was ever published on a topic.
const errCodeUndefinedTable = "42P01"

type subscriber struct {
	topic   string
	handler func(events []domain.Event)
}

type eventRepository struct {
	publisher message.Publisher
	db        *sql.DB

	subscribers    map[string][]subscriber // topic -> subscribers
	subscriberLock *sync.Mutex
}

func NewWatermillEventRepository(publisher message.Publisher, db *sql.DB) domain.EventRepository {
	return &eventRepository{
		publisher:      publisher,
		db:             db,
		subscribers:    make(map[string][]subscriber),
		subscriberLock: &sync.Mutex{},
	}
}

func (e *eventRepository) ClearRegisteredHandlers(topics ...string) {
	e.subscriberLock.Lock()
	defer e.subscriberLock.Unlock()

	if len(topics) == 0 {
		e.subscribers = make(map[string][]subscriber)
		return
	}
	for _, topic := range topics {
		delete(e.subscribers, topic)
	}
}

func (e *eventRepository) Close() {
	//nolint:errcheck
	e.publisher.Close()
}

func (e *eventRepository) RegisterEventsHandler(
	topic string, handler func(events []domain.Event),
) {
	e.subscriberLock.Lock()
	defer e.subscriberLock.Unlock()

	e.subscribers[topic] = append(e.subscribers[topic], subscriber{
		topic:   topic,
		handler: handler,
	})
}

func (e *eventRepository) Save(
	ctx context.Context, topic string, id string, events []domain.Event,
) error {
	if len(events) == 0 {
		return nil
	}
	messages, err := toWatermillMessages(events)
	if err != nil {
		return err
	}
	if err := e.publisher.Publish(topic, messages...); err != nil {
		return fmt.Errorf("failed to publish events of %s %s: %w", topic, id, err)
	}

	e.dispatch(topic, events)
	return nil
}

func (e *eventRepository) Load(
	ctx context.Context, topic, id string,
) ([]domain.Event, error) {
	return e.getAllEvents(ctx, topic, id)
}

func (e *eventRepository) dispatch(topic string, events []domain.Event) {
	e.subscriberLock.Lock()
	subscribers := append([]subscriber{}, e.subscribers[topic]...)
	e.subscriberLock.Unlock()

	for _, subscriber := range subscribers {
		go subscriber.handler(events)
	}
}

// getAllEvents queries the watermill_<topic> table for the messages whose JSON payload carries
// the given aggregate Id, in publication order.
func (e *eventRepository) getAllEvents(
	ctx context.Context, topic, id string,
) ([]domain.Event, error) {
	if e.db == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	query := fmt.Sprintf(
		`SELECT payload FROM watermill_%s WHERE payload->>'Id' = $1 ORDER BY "offset" ASC;`,
		topic,
	)
	rows, err := e.db.QueryContext(ctx, query, id)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == errCodeUndefinedTable {
			return []domain.Event{}, nil
		}
		return nil, fmt.Errorf(
			"failed to query messages for topic %s with id %s: %w", topic, id, err,
		)
	}
	// nolint
	defer rows.Close()

	events := make([]domain.Event, 0)
	for rows.Next() {
		var record []byte
		if err := rows.Scan(&record); err != nil {
			return nil, fmt.Errorf("failed to scan message payload: %w", err)
		}
		event, err := domain.DecodeEvent(record)
		if err != nil {
			log.WithError(err).Warnf("failed to deserialize event: %s", string(record))
			continue
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf(
			"error iterating messages for topic %s with id %s: %w", topic, id, err,
		)
	}
	return events, nil
}

func toWatermillMessages(events []domain.Event) ([]*message.Message, error) {
	messages := make([]*message.Message, 0, len(events))
	for _, event := range events {
		payload, err := json.Marshal(event)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s event: %w", event.GetType(), err)
		}
		messages = append(messages, message.NewMessage(watermill.NewUUID(), payload))
	}
	return messages, nil
}
