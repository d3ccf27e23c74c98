// Package idhash derives deterministic record identifiers. IDs are
// SHA256 over the pipe-joined key fields, base58-encoded and truncated,
// so replaying the same inputs always yields the same ID and duplicate
// inserts surface as ErrDuplicateKey instead of silent double-writes.
package idhash

import (
	"crypto/sha256"
	"fmt"

	"github.com/mr-tron/base58"
)

// idLen keeps IDs log-friendly while leaving ~130 bits of hash.
const idLen = 22

func hashID(data string) string {
	sum := sha256.Sum256([]byte(data))
	enc := base58.Encode(sum[:])
	if len(enc) > idLen {
		enc = enc[:idLen]
	}
	return enc
}

// TradeID identifies a tracked trade.
// Key: symbol|strategy_id|action|opened_at_unix.
func TradeID(symbol, strategyID, action string, openedAtUnix int64) string {
	return hashID(fmt.Sprintf("trade|%s|%s|%s|%d", symbol, strategyID, action, openedAtUnix))
}

// ApprovalID identifies a pending approval.
// Key: symbol|strategy_id|created_at_unix.
func ApprovalID(symbol, strategyID string, createdAtUnix int64) string {
	return hashID(fmt.Sprintf("approval|%s|%s|%d", symbol, strategyID, createdAtUnix))
}

// RunID identifies a tick run. Key: started_at_unix_nano|dry_run.
func RunID(startedAtUnixNano int64, dryRun bool) string {
	return hashID(fmt.Sprintf("run|%d|%t", startedAtUnixNano, dryRun))
}

// SignalEventID identifies one evaluator emission.
// Key: symbol|strategy_id|preset_id|generated_at_unix.
func SignalEventID(symbol, strategyID, presetID string, generatedAtUnix int64) string {
	return hashID(fmt.Sprintf("signal|%s|%s|%s|%d", symbol, strategyID, presetID, generatedAtUnix))
}
