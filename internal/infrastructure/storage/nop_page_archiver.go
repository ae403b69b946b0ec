package storage

import (
	"context"

	"github.com/aurum/backend/internal/domain/connector"
)

// NopPageArchiver discards pages. It is used when storage is disabled.
type NopPageArchiver struct{}

// NewNopPageArchiver creates a new NopPageArchiver
func NewNopPageArchiver() *NopPageArchiver {
	return &NopPageArchiver{}
}

// Ensure NopPageArchiver implements connector.PageArchiver
var _ connector.PageArchiver = (*NopPageArchiver)(nil)

// ArchivePage does nothing
func (NopPageArchiver) ArchivePage(context.Context, connector.PageArchive) error {
	return nil
}
