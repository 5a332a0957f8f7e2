package syncer

import (
	"context"
	"time"

	"tabsync/internal/orders"
	"tabsync/internal/outbox"
)

// detectOrderConflict probes authoritative storage for an open unsettled
// order on the same table placed within the recency window while the table's
// session is still active. Such an order means staff already rang the table
// up while the queued mutation sat offline, so the entry needs review
// instead of blind application.
func (w *Worker) detectOrderConflict(ctx context.Context, m outbox.OrderCreate) (*orders.Order, error) {
	since := time.Now().Add(-w.cfg.ConflictWindow())
	return w.authority.OpenOrderForTable(ctx, m.TableID, since)
}
