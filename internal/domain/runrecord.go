package domain

import "time"

// Decision is the outcome of one evaluated symbol x strategy pair, or of a
// lifecycle step, inside a tick.
type Decision string

const (
	DecisionNoTrade       Decision = "NO_TRADE"
	DecisionReject        Decision = "REJECT"
	DecisionTrackPaper    Decision = "TRACK_PAPER"
	DecisionQueueApproval Decision = "QUEUE_APPROVAL"
	DecisionExecuteLive   Decision = "EXECUTE_LIVE"
	DecisionClose         Decision = "CLOSE"
	DecisionStopUpdate    Decision = "STOP_UPDATE"
	DecisionError         Decision = "ERROR"
	DecisionSkipped       Decision = "SKIPPED"
)

// RunAction is a single line item in a run's audit trail.
type RunAction struct {
	Symbol     string   `json:"symbol"`
	StrategyID string   `json:"strategy_id,omitempty"`
	Decision   Decision `json:"decision"`
	Reason     string   `json:"reason,omitempty"`
	Confidence int      `json:"confidence,omitempty"`
	TradeID    string   `json:"trade_id,omitempty"`
	ApprovalID string   `json:"approval_id,omitempty"`
}

// RunMeta summarizes a run for quick inspection without walking actions.
type RunMeta struct {
	SymbolsEvaluated int `json:"symbols_evaluated"`
	PairsEvaluated   int `json:"pairs_evaluated"`
	SignalsEmitted   int `json:"signals_emitted"`
	EntriesAdmitted  int `json:"entries_admitted"`
	EntriesRejected  int `json:"entries_rejected"`
	TradesClosed     int `json:"trades_closed"`
	StopsUpdated     int `json:"stops_updated"`
	Errors           int `json:"errors"`
	Skipped          int `json:"skipped"`
}

// RunRecord is the persisted audit record of a single tick. One is written
// for every tick, including dry runs, failed runs and cancelled runs.
type RunRecord struct {
	ID            string      `json:"id"`
	StartedAt     time.Time   `json:"started_at"`
	FinishedAt    time.Time   `json:"finished_at"`
	DryRun        bool        `json:"dry_run"`
	ConfigVersion int64       `json:"config_version"`
	Mode          Mode        `json:"mode"`
	OK            bool        `json:"ok"`
	Error         string      `json:"error,omitempty"`
	Actions       []RunAction `json:"actions"`
	Meta          RunMeta     `json:"meta"`
}

// Tally recomputes Meta counters from Actions.
func (r *RunRecord) Tally() {
	m := RunMeta{}
	symbols := make(map[string]struct{})
	for _, a := range r.Actions {
		if a.Symbol != "" {
			symbols[a.Symbol] = struct{}{}
		}
		switch a.Decision {
		case DecisionNoTrade:
			m.PairsEvaluated++
		case DecisionReject:
			m.PairsEvaluated++
			m.SignalsEmitted++
			m.EntriesRejected++
		case DecisionTrackPaper, DecisionQueueApproval, DecisionExecuteLive:
			m.PairsEvaluated++
			m.SignalsEmitted++
			m.EntriesAdmitted++
		case DecisionClose:
			m.TradesClosed++
		case DecisionStopUpdate:
			m.StopsUpdated++
		case DecisionError:
			m.Errors++
		case DecisionSkipped:
			m.Skipped++
		}
	}
	m.SymbolsEvaluated = len(symbols)
	r.Meta = m
}
