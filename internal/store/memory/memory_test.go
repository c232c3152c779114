package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avask/arbot/internal/domain"
)

func TestOpportunityStoreRecentNewestFirst(t *testing.T) {
	s := NewOpportunityStore(10)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Insert(ctx, domain.Opportunity{
			Fingerprint: fmt.Sprintf("fp-%d", i),
			DetectedAt:  time.Now(),
		}))
	}

	got, err := s.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "fp-2", got[0].Fingerprint)
	assert.Equal(t, "fp-1", got[1].Fingerprint)
}

func TestOpportunityStoreEvictsOldest(t *testing.T) {
	s := NewOpportunityStore(2)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Insert(ctx, domain.Opportunity{Fingerprint: fmt.Sprintf("fp-%d", i)}))
	}

	got, err := s.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "fp-4", got[0].Fingerprint)
	assert.Equal(t, "fp-3", got[1].Fingerprint)
}

func TestExecutionStoreUpdateByID(t *testing.T) {
	s := NewExecutionStore(10)
	ctx := context.Background()

	exec := domain.TradeExecution{ID: "e-1", Status: domain.ExecQueued}
	require.NoError(t, s.Insert(ctx, exec))

	exec.Status = domain.ExecConfirmed
	exec.RealizedProfit = 1.5
	require.NoError(t, s.Update(ctx, exec))

	got, err := s.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, domain.ExecConfirmed, got[0].Status)
	assert.InDelta(t, 1.5, got[0].RealizedProfit, 1e-9)
}

func TestExecutionStoreUpdateUnknownID(t *testing.T) {
	s := NewExecutionStore(10)
	err := s.Update(context.Background(), domain.TradeExecution{ID: "missing"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
