package domain

import "time"

// TradeStatus is the lifecycle state of a tracked trade.
type TradeStatus string

const (
	TradeStatusActive TradeStatus = "ACTIVE"
	TradeStatusClosed TradeStatus = "CLOSED"
)

// Exit reasons recorded when a trade transitions to CLOSED.
const (
	ExitReasonTarget   = "target"
	ExitReasonStop     = "stop"
	ExitReasonTimeStop = "time_stop"
	ExitReasonManual   = "manual"
)

// TrackedTrade is a paper-tracked or live position under lifecycle
// management. Records are never deleted; closing is a status transition.
type TrackedTrade struct {
	ID          string      `json:"id"`
	Symbol      string      `json:"symbol"`
	StrategyID  string      `json:"strategy_id"`
	Action      Action      `json:"action"`
	Quantity    int64       `json:"quantity"`
	Entry       float64     `json:"entry"`
	Stop        float64     `json:"stop"`
	Target      float64     `json:"target"`
	InitialRisk float64     `json:"initial_risk"`
	Paper       bool        `json:"paper"`
	OrderID     string      `json:"order_id,omitempty"`
	OpenedAt    time.Time   `json:"opened_at"`
	Status      TradeStatus `json:"status"`
	ClosedAt    *time.Time  `json:"closed_at,omitempty"`
	ExitReason  string      `json:"exit_reason,omitempty"`
	ExitPrice   *float64    `json:"exit_price,omitempty"`
}

// UnrealizedR returns open profit expressed in multiples of initial risk.
func (t *TrackedTrade) UnrealizedR(price float64) float64 {
	if t.InitialRisk <= 0 {
		return 0
	}
	if t.Action == ActionSell {
		return (t.Entry - price) / t.InitialRisk
	}
	return (price - t.Entry) / t.InitialRisk
}

// ApprovalStatus is the state of a pending live-trade approval.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "PENDING"
	ApprovalApproved ApprovalStatus = "APPROVED"
	ApprovalDeclined ApprovalStatus = "DECLINED"
)

// PendingApproval is a queued live entry awaiting a human decision.
// Created only in LIVE_CONFIRM mode; terminal on APPROVE or DECLINE and
// retained for audit either way.
type PendingApproval struct {
	ID                   string         `json:"id"`
	Symbol               string         `json:"symbol"`
	StrategyID           string         `json:"strategy_id"`
	Signal               Signal         `json:"signal"`
	Quantity             int64          `json:"quantity"`
	EstimatedNotionalUSD float64        `json:"estimated_notional_usd"`
	Status               ApprovalStatus `json:"status"`
	CreatedAt            time.Time      `json:"created_at"`
	ResolvedAt           *time.Time     `json:"resolved_at,omitempty"`
}
