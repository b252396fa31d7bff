package storage

import (
	"context"

	"imovel-search/models"
)

// ResultWriter is the persistence collaborator contract. The pipeline invokes
// it fire-and-forget after a live assembly.
type ResultWriter interface {
	Write(ctx context.Context, rs *models.ResultSet) error
	Close() error
}
