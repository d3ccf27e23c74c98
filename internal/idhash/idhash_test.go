package idhash

import "testing"

func TestTradeIDDeterministic(t *testing.T) {
	a := TradeID("AAPL", "trend_follow", "BUY", 1700000000)
	b := TradeID("AAPL", "trend_follow", "BUY", 1700000000)
	if a != b {
		t.Fatalf("same inputs produced different IDs: %s vs %s", a, b)
	}
	if len(a) != idLen {
		t.Fatalf("ID length = %d; want %d", len(a), idLen)
	}
}

func TestTradeIDDistinguishesFields(t *testing.T) {
	base := TradeID("AAPL", "trend_follow", "BUY", 1700000000)
	variants := []string{
		TradeID("MSFT", "trend_follow", "BUY", 1700000000),
		TradeID("AAPL", "breakout", "BUY", 1700000000),
		TradeID("AAPL", "trend_follow", "SELL", 1700000000),
		TradeID("AAPL", "trend_follow", "BUY", 1700000001),
	}
	for i, v := range variants {
		if v == base {
			t.Fatalf("variant %d collided with base ID", i)
		}
	}
}

func TestIDKindsDoNotCollide(t *testing.T) {
	trade := TradeID("AAPL", "trend_follow", "BUY", 1700000000)
	approval := ApprovalID("AAPL", "trend_follow", 1700000000)
	signal := SignalEventID("AAPL", "trend_follow", "balanced", 1700000000)
	run := RunID(1700000000, false)
	seen := map[string]bool{}
	for _, id := range []string{trade, approval, signal, run} {
		if seen[id] {
			t.Fatalf("ID collision across record kinds: %s", id)
		}
		seen[id] = true
	}
}

func TestRunIDDryRunDistinct(t *testing.T) {
	if RunID(42, true) == RunID(42, false) {
		t.Fatal("dry-run flag must change the run ID")
	}
}
