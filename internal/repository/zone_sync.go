package repository

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// zoneSyncConcurrency bounds the ledger writes in flight per page
const zoneSyncConcurrency = 8

// SyncAllZones copies every live zone counter from zones into ledger, one
// page at a time. It returns how many zones were synced before any error.
func SyncAllZones(ctx context.Context, zones ZoneRepository, ledger ZoneLedger, pageSize int, force bool) (int, error) {
	if pageSize <= 0 {
		pageSize = 500
	}

	var synced atomic.Int64
	for offset := 0; ; offset += pageSize {
		page, err := zones.ListAll(ctx, pageSize, offset)
		if err != nil {
			return int(synced.Load()), fmt.Errorf("failed to list zones at offset %d: %w", offset, err)
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(zoneSyncConcurrency)
		for _, z := range page {
			g.Go(func() error {
				if err := ledger.SyncZone(gctx, z, force); err != nil {
					return fmt.Errorf("failed to sync zone %s: %w", z.ID, err)
				}
				synced.Add(1)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return int(synced.Load()), err
		}

		if len(page) < pageSize {
			return int(synced.Load()), nil
		}
	}
}
