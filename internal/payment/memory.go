package payment

import (
	"context"
	"fmt"
	"sync"
	"time"

	"socratic-go/internal/ledger"
)

// Transfer is one completed movement of currency over the memory rail.
type Transfer struct {
	Payer    string
	Treasury string
	Amount   uint64
	At       time.Time
}

// MemoryRail is an in-process payment rail for development and testing.
// Every transfer succeeds and is kept in memory for inspection.
// Safe for concurrent use.
type MemoryRail struct {
	mu        sync.Mutex
	transfers []Transfer
}

var _ ledger.PaymentRail = (*MemoryRail)(nil)

// NewMemoryRail creates a new in-memory payment rail.
func NewMemoryRail() *MemoryRail {
	return &MemoryRail{}
}

// Transfer records the payment and succeeds.
func (r *MemoryRail) Transfer(ctx context.Context, payer string, treasury string, amount uint64) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("transfer cancelled: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.transfers = append(r.transfers, Transfer{
		Payer:    payer,
		Treasury: treasury,
		Amount:   amount,
		At:       time.Now(),
	})
	return nil
}

// Transfers returns a copy of all recorded transfers.
func (r *MemoryRail) Transfers() []Transfer {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Transfer, len(r.transfers))
	copy(out, r.transfers)
	return out
}
