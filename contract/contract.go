// Package contract defines the integration envelope that upstream
// modules publish economic events with, and the compatibility rules
// applied to it at ingest.
package contract

import (
	"encoding/json"
	"fmt"

	"github.com/xraph/journal/event"
)

// Integration sources known to the journal. Events from these sources
// are expected to carry a full envelope.
const (
	SourceTaskModule             = "TASK_MODULE"
	SourceHRModule               = "HR_MODULE"
	SourceConsultingOrchestrator = "CONSULTING_ORCHESTRATOR"
)

// supportedVersions lists the envelope contract versions this build
// can consume.
var supportedVersions = map[string]bool{
	"1.0": true,
	"1.1": true,
}

// IsIntegrationSource reports whether a source string names a known
// upstream module.
func IsIntegrationSource(source string) bool {
	switch source {
	case SourceTaskModule, SourceHRModule, SourceConsultingOrchestrator:
		return true
	}
	return false
}

// IsVersionSupported reports whether an envelope contract version can
// be consumed.
func IsVersionSupported(version string) bool {
	return supportedVersions[version]
}

// SupportedVersions returns the accepted contract versions.
func SupportedVersions() []string {
	return []string{"1.0", "1.1"}
}

// Envelope is the wire shape upstream modules publish. Amount rides as
// a json.Number so decimal text survives decoding untouched.
type Envelope struct {
	ContractVersion string         `json:"contractVersion"`
	Source          string         `json:"source"`
	SourceEventID   string         `json:"sourceEventId"`
	TraceID         string         `json:"traceId,omitempty"`
	TenantID        string         `json:"tenantId"`
	Type            event.Type     `json:"type"`
	Amount          json.Number    `json:"amount"`
	Currency        string         `json:"currency"`
	FieldID         string         `json:"fieldId,omitempty"`
	SeasonID        string         `json:"seasonId,omitempty"`
	EmployeeID      string         `json:"employeeId,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// Validate checks structural completeness of the envelope. Contract
// version support is checked separately so callers can distinguish an
// incompatible producer from a malformed one.
func (e *Envelope) Validate() error {
	switch {
	case e.ContractVersion == "":
		return fmt.Errorf("contract: missing contractVersion")
	case e.Source == "":
		return fmt.Errorf("contract: missing source")
	case e.SourceEventID == "":
		return fmt.Errorf("contract: missing sourceEventId")
	case e.TenantID == "":
		return fmt.Errorf("contract: missing tenantId")
	case e.Type == "":
		return fmt.Errorf("contract: missing type")
	case e.Amount == "":
		return fmt.Errorf("contract: missing amount")
	case e.Currency == "":
		return fmt.Errorf("contract: missing currency")
	}
	if !IsIntegrationSource(e.Source) {
		return fmt.Errorf("contract: unknown source %q", e.Source)
	}
	return nil
}
