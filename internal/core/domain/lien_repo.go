package domain

import "context"

type LienRepository interface {
	// GetLien returns nil if no lien exists with the given id.
	GetLien(ctx context.Context, id string) (*Lien, error)
	GetLiens(ctx context.Context, ids []string) ([]Lien, error)
	GetLiensByProvider(ctx context.Context, provider string) ([]Lien, error)
	UpsertLien(ctx context.Context, lien Lien) error
	Close()
}
