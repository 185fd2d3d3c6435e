package ports

import (
	"context"

	"github.com/zyfty/zyftyd/internal/core/domain"
)

type RepoManager interface {
	Events() domain.EventRepository
	Assets() domain.AssetRepository
	Liens() domain.LienRepository
	Sales() domain.SaleRepository
	Settings() domain.SettingsRepository
	// RunInTx runs fn within a single data store transaction. Repository calls made with the
	// given context are committed together only if fn returns nil.
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
	Close()
}
