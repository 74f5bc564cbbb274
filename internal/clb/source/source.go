// Package source loads CLB conversion tables from the embedded default, from
// PostgreSQL, or through a TTL cache in front of either.
package source

import (
	"context"

	"immimate/internal/clb"
)

// Source loads a conversion table.
type Source interface {
	Load(ctx context.Context) (*clb.Table, error)
}

// Embedded serves the table compiled into the binary.
type Embedded struct{}

func (Embedded) Load(ctx context.Context) (*clb.Table, error) {
	return clb.DefaultTable()
}
