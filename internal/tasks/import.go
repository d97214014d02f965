package tasks

import (
	"context"
	"fmt"
	"strings"

	"github.com/desertthunder/umx/internal/device"
	"github.com/desertthunder/umx/internal/models"
	"github.com/desertthunder/umx/internal/shared"
)

// ImportUsers reads the full user collection at schema.Path with exactly one read call.
//
// Entries are returned untransformed and in device order. Any failure fails the import as a whole.
func ImportUsers(ctx context.Context, caller device.Caller, schema models.Schema) ([]models.Entry, error) {
	if caller == nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrImport, shared.ErrSessionClosed)
	}
	if strings.TrimSpace(schema.Path) == "" {
		return nil, fmt.Errorf("%w: %w: source schema has no resource path", shared.ErrImport, shared.ErrInvalidConfig)
	}

	res, err := caller.Call(ctx, schema.Path, device.Read, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrImport, err)
	}

	entries := []models.Entry{}
	if res != nil && res.Entries != nil {
		entries = res.Entries
	}
	return entries, nil
}
