package pgdb

import (
	"fmt"

	watermillsql "github.com/ThreeDotsLabs/watermill-sql/v4/pkg/sql"
	"github.com/zyfty/zyftyd/internal/core/domain"
	watermilldb "github.com/zyfty/zyftyd/internal/infrastructure/db/watermill"
)

// NewEventRepository stores events as watermill messages, one table per topic.
func NewEventRepository(config ...interface{}) (domain.EventRepository, error) {
	db, err := dbFromConfig("event", config...)
	if err != nil {
		return nil, err
	}

	publisher, err := watermillsql.NewPublisher(
		watermillsql.BeginnerFromStdSQL(db),
		watermillsql.PublisherConfig{
			SchemaAdapter:        watermillsql.DefaultPostgreSQLSchema{},
			AutoInitializeSchema: true,
		},
		watermilldb.NewLogger(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create event publisher: %w", err)
	}
	return watermilldb.NewWatermillEventRepository(publisher, db), nil
}
