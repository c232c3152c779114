package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avask/arbot/internal/domain"
	"github.com/avask/arbot/internal/settlement"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeSettler returns canned results and records submissions.
type fakeSettler struct {
	mu      sync.Mutex
	rcpt    settlement.Receipt
	err     error
	submits int

	// confirm behavior when rcpt.Pending is true
	confirmRcpt  settlement.Receipt
	confirmErr   error
	confirmAfter int // polls before done
	polls        int
}

func (f *fakeSettler) ExecuteArbitrage(_ context.Context, _ settlement.Trade) (settlement.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits++
	return f.rcpt, f.err
}

func (f *fakeSettler) Confirm(_ context.Context, _ string) (settlement.Receipt, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	if f.polls < f.confirmAfter {
		return settlement.Receipt{}, false, nil
	}
	return f.confirmRcpt, true, f.confirmErr
}

func (f *fakeSettler) submitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submits
}

func (f *fakeSettler) pollCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls
}

func opp(fingerprint string) domain.Opportunity {
	return domain.Opportunity{
		Pair:               "ETH/USDC",
		BuyVenue:           "v1",
		SellVenue:          "v2",
		BuyPrice:           101,
		SellPrice:          103,
		Notional:           1,
		EstimatedProfit:    1.5,
		EstimatedProfitBps: 148,
		DetectedAt:         time.Now().UTC(),
		Fingerprint:        fingerprint,
	}
}

func newOrchestrator(t *testing.T, settler settlement.Settler, auto bool) (*Orchestrator, *transitions) {
	t.Helper()
	tr := &transitions{}
	o := New(Config{
		Token:          "USDC",
		Routers:        map[string]string{"v1": "r1", "v2": "r2"},
		AutoExecute:    auto,
		QueueSize:      16,
		SubmitTimeout:  time.Second,
		ConfirmTimeout: 2 * time.Second,
		PollInterval:   20 * time.Millisecond,
	}, settler, nil, tr.record, testLogger())
	return o, tr
}

// transitions collects emitted execution states.
type transitions struct {
	mu    sync.Mutex
	execs []domain.TradeExecution
}

func (tr *transitions) record(exec domain.TradeExecution) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.execs = append(tr.execs, exec)
}

func (tr *transitions) statuses() []domain.ExecStatus {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	out := make([]domain.ExecStatus, len(tr.execs))
	for i, e := range tr.execs {
		out[i] = e.Status
	}
	return out
}

func waitTerminal(t *testing.T, o *Orchestrator, fingerprint string) domain.TradeExecution {
	t.Helper()
	var exec domain.TradeExecution
	require.Eventually(t, func() bool {
		e, ok := o.Status(fingerprint)
		if !ok || !e.Status.Terminal() {
			return false
		}
		exec = e
		return true
	}, 3*time.Second, 10*time.Millisecond)
	return exec
}

func TestSubmitRejectsWhenAutoExecuteOff(t *testing.T) {
	o, tr := newOrchestrator(t, &fakeSettler{}, false)

	assert.False(t, o.Submit(opp("fp-1")))
	_, ok := o.Status("fp-1")
	assert.False(t, ok)
	assert.Empty(t, tr.statuses())
}

func TestSubmitDeduplicatesLiveFingerprint(t *testing.T) {
	o, _ := newOrchestrator(t, &fakeSettler{}, true)

	assert.True(t, o.Submit(opp("fp-1")))
	// Same fingerprint while the first is still queued: rejected.
	assert.False(t, o.Submit(opp("fp-1")))
}

func TestSubmitConcurrentDuplicatesAcceptExactlyOne(t *testing.T) {
	o, _ := newOrchestrator(t, &fakeSettler{}, true)

	const n = 32
	var wg sync.WaitGroup
	accepted := make(chan bool, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			accepted <- o.Submit(opp("fp-dup"))
		}()
	}
	wg.Wait()
	close(accepted)

	count := 0
	for ok := range accepted {
		if ok {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestProcessConfirmsSynchronousSettlement(t *testing.T) {
	settler := &fakeSettler{rcpt: settlement.Receipt{TxHash: "sim-1", RealizedProfit: 1.5}}
	o, tr := newOrchestrator(t, settler, true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go o.Run(ctx)

	require.True(t, o.Submit(opp("fp-ok")))
	exec := waitTerminal(t, o, "fp-ok")

	assert.Equal(t, domain.ExecConfirmed, exec.Status)
	assert.Equal(t, "sim-1", exec.TxHash)
	assert.InDelta(t, 1.5, exec.RealizedProfit, 1e-9)
	assert.NotNil(t, exec.CompletedAt)
	assert.Equal(t, []domain.ExecStatus{
		domain.ExecQueued, domain.ExecSubmitted, domain.ExecConfirmed,
	}, tr.statuses())
}

func TestProcessMarksRevertTerminal(t *testing.T) {
	settler := &fakeSettler{err: fmt.Errorf("profit check: %w", domain.ErrProfitInvariant)}
	o, _ := newOrchestrator(t, settler, true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go o.Run(ctx)

	require.True(t, o.Submit(opp("fp-revert")))
	exec := waitTerminal(t, o, "fp-revert")

	assert.Equal(t, domain.ExecReverted, exec.Status)
	assert.Contains(t, exec.Error, domain.ErrProfitInvariant.Error())
}

func TestProcessNeverResubmitsAmbiguousFailure(t *testing.T) {
	settler := &fakeSettler{err: errors.New("connection reset")}
	o, _ := newOrchestrator(t, settler, true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go o.Run(ctx)

	require.True(t, o.Submit(opp("fp-amb")))
	exec := waitTerminal(t, o, "fp-amb")

	assert.Equal(t, domain.ExecFailed, exec.Status)
	assert.Equal(t, 1, settler.submitCount())
}

func TestProcessPollsPendingSubmissionToConfirmation(t *testing.T) {
	settler := &fakeSettler{
		rcpt:         settlement.Receipt{TxHash: "0xabc", Pending: true},
		confirmRcpt:  settlement.Receipt{TxHash: "0xabc", RealizedProfit: 2.0},
		confirmAfter: 3,
	}
	o, _ := newOrchestrator(t, settler, true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go o.Run(ctx)

	require.True(t, o.Submit(opp("fp-pending")))
	exec := waitTerminal(t, o, "fp-pending")

	assert.Equal(t, domain.ExecConfirmed, exec.Status)
	assert.Equal(t, "0xabc", exec.TxHash)
	assert.InDelta(t, 2.0, exec.RealizedProfit, 1e-9)
	assert.Equal(t, 1, settler.submitCount())
}

func TestProcessAmbiguousSendResolvedByPolling(t *testing.T) {
	// A timed-out send may still have broadcast the transaction: the hash
	// travels with the error and polling resolves the real outcome.
	settler := &fakeSettler{
		rcpt:         settlement.Receipt{TxHash: "0xfeed", Pending: true},
		err:          context.DeadlineExceeded,
		confirmRcpt:  settlement.Receipt{TxHash: "0xfeed", RealizedProfit: 1.2},
		confirmAfter: 2,
	}
	o, _ := newOrchestrator(t, settler, true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go o.Run(ctx)

	require.True(t, o.Submit(opp("fp-amb-send")))
	exec := waitTerminal(t, o, "fp-amb-send")

	assert.Equal(t, domain.ExecConfirmed, exec.Status)
	assert.Equal(t, "0xfeed", exec.TxHash)
	assert.InDelta(t, 1.2, exec.RealizedProfit, 1e-9)
	assert.Equal(t, 1, settler.submitCount())
	assert.GreaterOrEqual(t, settler.pollCount(), 1)
}

func TestProcessAmbiguousSendTimesOutToFailed(t *testing.T) {
	settler := &fakeSettler{
		rcpt:         settlement.Receipt{TxHash: "0xdead", Pending: true},
		err:          context.DeadlineExceeded,
		confirmAfter: 1 << 30, // never mined
	}
	o, _ := newOrchestrator(t, settler, true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go o.Run(ctx)

	require.True(t, o.Submit(opp("fp-amb-lost")))
	exec := waitTerminal(t, o, "fp-amb-lost")

	assert.Equal(t, domain.ExecFailed, exec.Status)
	assert.Equal(t, "0xdead", exec.TxHash)
	assert.Equal(t, domain.ErrSubmissionTimeout.Error(), exec.Error)
	assert.Equal(t, 1, settler.submitCount())
	assert.GreaterOrEqual(t, settler.pollCount(), 1)
}

func TestProcessPendingRevertResolvesReverted(t *testing.T) {
	settler := &fakeSettler{
		rcpt:         settlement.Receipt{TxHash: "0xdef", Pending: true},
		confirmErr:   fmt.Errorf("status 0: %w", domain.ErrProfitInvariant),
		confirmAfter: 1,
	}
	o, _ := newOrchestrator(t, settler, true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go o.Run(ctx)

	require.True(t, o.Submit(opp("fp-chain-revert")))
	exec := waitTerminal(t, o, "fp-chain-revert")

	assert.Equal(t, domain.ExecReverted, exec.Status)
	assert.Equal(t, 1, settler.submitCount())
}

func TestSupersededQueuedWorkIsCancelled(t *testing.T) {
	settler := &fakeSettler{rcpt: settlement.Receipt{TxHash: "sim-2", RealizedProfit: 1.0}}
	o, _ := newOrchestrator(t, settler, true)

	// Queue two detections for the same pair and direction before the
	// orchestrator starts draining.
	require.True(t, o.Submit(opp("fp-old")))
	require.True(t, o.Submit(opp("fp-new")))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go o.Run(ctx)

	oldExec := waitTerminal(t, o, "fp-old")
	newExec := waitTerminal(t, o, "fp-new")

	assert.Equal(t, domain.ExecFailed, oldExec.Status)
	assert.Contains(t, oldExec.Error, "superseded")
	assert.Equal(t, domain.ExecConfirmed, newExec.Status)
	assert.Equal(t, 1, settler.submitCount())
}

func TestAutoExecuteToggle(t *testing.T) {
	o, _ := newOrchestrator(t, &fakeSettler{}, true)

	assert.True(t, o.AutoExecute())
	o.SetAutoExecute(false)
	assert.False(t, o.AutoExecute())
	assert.False(t, o.Submit(opp("fp-off")))
}
