package stream

import (
	"errors"
	"math/big"
	"testing"
)

func TestStreamMetricsBreakdown(t *testing.T) {
	env := newTestEnv(t)
	if err := env.engine.SetTokenFeeRate(env.admin, "PAY", percentRate(1)); err != nil {
		t.Fatalf("set fee rate: %v", err)
	}
	id := env.create(t, 1000, 1000, true, false)
	env.advance(500)
	if _, _, err := env.engine.Withdraw(env.recipient, id, big.NewInt(200), env.recipient); err != nil {
		t.Fatalf("withdraw: %v", err)
	}

	metrics := NewMetrics(env.ledger)
	metrics.SetNowFunc(func() int64 { return env.now })
	view, err := metrics.StreamMetrics(id)
	if err != nil {
		t.Fatalf("stream metrics: %v", err)
	}
	if view.TotalDebt.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("total debt: want 500, got %s", view.TotalDebt)
	}
	if view.CoveredDebt.Cmp(big.NewInt(500)) != 0 || view.UncoveredDebt.Sign() != 0 {
		t.Fatalf("coverage: covered=%s uncovered=%s", view.CoveredDebt, view.UncoveredDebt)
	}
	if view.Withdrawable.Cmp(big.NewInt(300)) != 0 {
		t.Fatalf("withdrawable: want 300, got %s", view.Withdrawable)
	}
	if view.Streamed.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("streamed: want withdrawn+withdrawable=500, got %s", view.Streamed)
	}
	if view.Withdrawn.Cmp(big.NewInt(200)) != 0 || view.WithdrawalCount != 1 {
		t.Fatalf("withdrawal summary: withdrawn=%s count=%d", view.Withdrawn, view.WithdrawalCount)
	}
	if view.Depletes {
		t.Fatalf("fully funded stream must not report depletion")
	}
}

func TestStreamMetricsReportsDepletion(t *testing.T) {
	env := newTestEnv(t)
	id := env.create(t, 1000, 1000, true, false)
	env.advance(600)
	if err := env.engine.Cancel(env.sender, id); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	metrics := NewMetrics(env.ledger)
	metrics.SetNowFunc(func() int64 { return env.now })
	view, err := metrics.StreamMetrics(id)
	if err != nil {
		t.Fatalf("stream metrics: %v", err)
	}
	if view.Status != StreamCanceled {
		t.Fatalf("status: want canceled, got %s", view.Status)
	}
	// Canceled streams no longer accrue, so they never deplete.
	if view.Depletes {
		t.Fatalf("canceled stream must not report depletion")
	}
	if view.Withdrawable.Cmp(big.NewInt(600)) != 0 {
		t.Fatalf("frozen withdrawable: want 600, got %s", view.Withdrawable)
	}
}

func TestProtocolMetricsAggregates(t *testing.T) {
	env := newTestEnv(t)
	if err := env.engine.SetTokenFeeRate(env.admin, "PAY", percentRate(1)); err != nil {
		t.Fatalf("set fee rate: %v", err)
	}
	first := env.create(t, 1000, 1000, true, false)
	env.create(t, 2000, 1000, true, false)
	env.advance(500)
	if _, _, err := env.engine.WithdrawMax(env.recipient, first, env.recipient); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if err := env.engine.Cancel(env.sender, first); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	metrics := NewMetrics(env.ledger)
	view, err := metrics.ProtocolMetrics()
	if err != nil {
		t.Fatalf("protocol metrics: %v", err)
	}
	if view.TotalStreams != 2 || view.ActiveStreams != 1 {
		t.Fatalf("counts: total=%d active=%d", view.TotalStreams, view.ActiveStreams)
	}
	if len(view.Tokens) != 1 || view.Tokens[0].Token != "PAY" {
		t.Fatalf("tokens: %+v", view.Tokens)
	}
	// First stream: 500 withdrawn, remainder refunded on cancel. Second still
	// holds its full deposit.
	if view.Tokens[0].ValueLocked.Cmp(big.NewInt(2000)) != 0 {
		t.Fatalf("value locked: want 2000, got %s", view.Tokens[0].ValueLocked)
	}
	if view.Tokens[0].FeesCollected.Cmp(big.NewInt(5)) != 0 {
		t.Fatalf("fees collected: want 5, got %s", view.Tokens[0].FeesCollected)
	}
}

func TestStreamMetricsUnknownID(t *testing.T) {
	metrics := NewMetrics(newMockLedger())
	if _, err := metrics.StreamMetrics(big.NewInt(7)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown id: want ErrNotFound, got %v", err)
	}
}
