package bankrail

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/paygrid/settlement-engine-go/internal/domain"
)

// Stub is an in-process bank rail for local development and tests. It
// honours the idempotency key: repeating a transfer for the same batch
// returns the original receipt.
type Stub struct {
	mu       sync.Mutex
	receipts map[string]*domain.RailReceipt
	seq      int

	// FailWith, when set, makes every new transfer fail with that error.
	FailWith error
}

func NewStub() *Stub {
	return &Stub{receipts: make(map[string]*domain.RailReceipt)}
}

func (s *Stub) Transfer(ctx context.Context, req *domain.RailTransfer) (*domain.RailReceipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.receipts[req.IdempotencyKey]; ok {
		return r, nil
	}
	if s.FailWith != nil {
		return nil, &domain.ErrExternalRail{BatchID: req.BatchID.String(), Err: s.FailWith}
	}

	s.seq++
	r := &domain.RailReceipt{
		Reference: fmt.Sprintf("STUB-%06d", s.seq),
		UTRNumber: fmt.Sprintf("UTR%s%06d", time.Now().UTC().Format("20060102"), s.seq),
	}
	s.receipts[req.IdempotencyKey] = r
	return r, nil
}
