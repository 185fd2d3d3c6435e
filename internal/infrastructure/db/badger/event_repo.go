package badgerdb

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/timshannon/badgerhold/v4"
	"github.com/zyfty/zyftyd/internal/core/domain"
)

const eventStoreDir = "events"

type eventDTO struct {
	Key         string
	Topic       string `badgerhold:"index"`
	AggregateId string `badgerhold:"index"`
	Seq         uint64
	Payload     []byte
}

type eventRepository struct {
	store    *badgerhold.Store
	lock     *sync.Mutex
	handlers map[string][]func(events []domain.Event)
}

func NewEventRepository(config ...interface{}) (domain.EventRepository, error) {
	baseDir, logger, err := parseConfig(config...)
	if err != nil {
		return nil, err
	}
	var dir string
	if len(baseDir) > 0 {
		dir = filepath.Join(baseDir, eventStoreDir)
	}
	store, err := createDB(dir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open event store: %s", err)
	}
	return &eventRepository{
		store:    store,
		lock:     &sync.Mutex{},
		handlers: make(map[string][]func(events []domain.Event)),
	}, nil
}

func (r *eventRepository) Save(
	ctx context.Context, topic, id string, events []domain.Event,
) error {
	if len(events) == 0 {
		return nil
	}
	seq, err := r.store.Badger().GetSequence([]byte("events_seq"), 100)
	if err != nil {
		return fmt.Errorf("failed to get event sequence: %w", err)
	}
	// nolint:errcheck
	defer seq.Release()

	dtos := make([]eventDTO, 0, len(events))
	for _, event := range events {
		payload, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("failed to encode %s event: %w", event.GetType(), err)
		}
		next, err := seq.Next()
		if err != nil {
			return fmt.Errorf("failed to get next event sequence: %w", err)
		}
		dtos = append(dtos, eventDTO{
			Key:         fmt.Sprintf("%s:%s:%020d", topic, id, next),
			Topic:       topic,
			AggregateId: id,
			Seq:         next,
			Payload:     payload,
		})
	}

	if err := withRetry(func() error {
		tx := r.store.Badger().NewTransaction(true)
		defer tx.Discard()
		for _, dto := range dtos {
			if err := r.store.TxInsert(tx, dto.Key, dto); err != nil {
				return err
			}
		}
		return tx.Commit()
	}); err != nil {
		return fmt.Errorf("failed to save events of %s %s: %w", topic, id, err)
	}

	r.dispatch(topic, events)
	return nil
}

func (r *eventRepository) Load(
	ctx context.Context, topic, id string,
) ([]domain.Event, error) {
	dtos := make([]eventDTO, 0)
	query := badgerhold.Where("Topic").Eq(topic).Index("Topic").
		And("AggregateId").Eq(id).SortBy("Seq")
	if err := r.store.Find(&dtos, query); err != nil {
		return nil, fmt.Errorf("failed to load events of %s %s: %w", topic, id, err)
	}

	events := make([]domain.Event, 0, len(dtos))
	for _, dto := range dtos {
		event, err := domain.DecodeEvent(dto.Payload)
		if err != nil {
			log.WithError(err).Warnf("failed to decode event %s", dto.Key)
			continue
		}
		events = append(events, event)
	}
	return events, nil
}

func (r *eventRepository) RegisterEventsHandler(
	topic string, handler func(events []domain.Event),
) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.handlers[topic] = append(r.handlers[topic], handler)
}

func (r *eventRepository) ClearRegisteredHandlers(topics ...string) {
	r.lock.Lock()
	defer r.lock.Unlock()

	if len(topics) == 0 {
		r.handlers = make(map[string][]func(events []domain.Event))
		return
	}
	for _, topic := range topics {
		delete(r.handlers, topic)
	}
}

func (r *eventRepository) Close() {
	// nolint:all
	r.store.Close()
}

// dispatch hands a saved batch to the handlers of its topic, each in its own goroutine.
func (r *eventRepository) dispatch(topic string, events []domain.Event) {
	r.lock.Lock()
	handlers := append([]func(events []domain.Event){}, r.handlers[topic]...)
	r.lock.Unlock()

	for _, handler := range handlers {
		go handler(events)
	}
}
