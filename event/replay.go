package event

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// DeriveReplayKey computes the deterministic replay key for an event.
// Precedence: an explicit replayKey in metadata wins, then the source
// event ID, then the idempotency key, then a content fingerprint when
// both source and trace are known. Events with none of these get no
// replay key and no duplicate protection.
func DeriveReplayKey(tenantID string, t Type, amount string, currency string, md Metadata) string {
	if key := md.String(MetaReplayKey); key != "" {
		return key
	}
	if src := md.String(MetaSourceEventID); src != "" {
		return "src:" + src
	}
	if idem := md.String(MetaIdempotencyKey); idem != "" {
		return "idem:" + idem
	}

	source := md.String(MetaSource)
	trace := md.String(MetaTraceID)
	if source != "" && trace != "" {
		return "fp:" + Fingerprint(tenantID, t, amount, currency, source, trace)
	}
	return ""
}

// Fingerprint hashes the identifying tuple of an event into a stable
// hex digest. Field order is fixed so equal tuples always collide.
func Fingerprint(tenantID string, t Type, amount, currency, source, traceID string) string {
	h := sha256.Sum256([]byte(strings.Join([]string{
		tenantID, string(t), amount, currency, source, traceID,
	}, "|")))
	return hex.EncodeToString(h[:])
}
