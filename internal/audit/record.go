// Package audit writes and replays the per-agent decision log: every market
// analysis, proposal, validation verdict, and executed trade as one JSON
// line, timestamped in simulation time.
package audit

import (
	"time"

	"main/internal/schema"
)

// Record is one audit log line.
type Record = schema.AuditRecord

// New builds a record stamped with the session instant.
func New(kind schema.AuditType, session time.Time, runID, agent, summary string, payload any) Record {
	return Record{
		Type:      kind,
		Timestamp: schema.FormatDate(session),
		RunID:     runID,
		Agent:     agent,
		Summary:   summary,
		Payload:   payload,
	}
}
