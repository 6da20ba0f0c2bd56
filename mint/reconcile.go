package mint

import (
	"context"
	"time"
)

const reconcileInterval = 30 * time.Second

// reconcilePendingMelts is the crash-safety background loop: on every tick
// it asks the Lightning backend for the status of every melt quote still
// PENDING and settles each the same way an in-request GetMeltQuoteState
// call would. It runs for the lifetime of the mint and exits when Shutdown
// closes m.stop.
func (m *Mint) reconcilePendingMelts() {
	ticker := time.NewTicker(reconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.reconcileOnce()
		}
	}
}

func (m *Mint) reconcileOnce() {
	quotes, err := m.db.GetPendingMeltQuotes()
	if err != nil {
		m.logErrorf("reconciler: error listing pending melt quotes: %v", err)
		return
	}

	now := time.Now()
	for _, quote := range quotes {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		_, err := m.reconcileMeltQuote(ctx, quote)
		cancel()
		if err != nil {
			m.logErrorf("reconciler: error reconciling melt quote '%v': %v", quote.Id, err)
		}
	}

	if removed, err := m.db.SweepExpiredPending(now.Unix()); err != nil {
		m.logErrorf("reconciler: error sweeping expired pending proofs: %v", err)
	} else if removed > 0 {
		m.logInfof("reconciler: swept %v expired pending proof(s)", removed)
	}
}
