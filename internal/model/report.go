package model

import "time"

// ComplianceScores summarizes a property's compliance posture. The
// embedded snapshot doubles as the input to vendor category mapping.
type ComplianceScores struct {
	HPDScore     float64 `json:"hpd_score"`
	DOBScore     float64 `json:"dob_score"`
	OverallScore float64 `json:"overall_score"`

	Snapshot ViolationSnapshot `json:"counts"`
}

// ComplianceReport is a generated report for one property.
type ComplianceReport struct {
	ID       string              `json:"id"`
	Address  string              `json:"address"`
	City     string              `json:"city"` // "nyc" or "philadelphia"
	Property PropertyIdentifiers `json:"property"`
	Scores   ComplianceScores    `json:"scores"`

	// Data maps dataset name to raw rows, truncated to the per-dataset cap.
	Data map[string][]map[string]any `json:"data"`

	// Summary is an optional AI-generated plain-language summary.
	Summary string `json:"summary,omitempty"`

	GeneratedAt time.Time `json:"generated_at"`
}

// RequestStatus tracks the lifecycle of a vendor work request.
type RequestStatus string

const (
	RequestStatusOpen      RequestStatus = "open"
	RequestStatusContacted RequestStatus = "contacted"
	RequestStatusClosed    RequestStatus = "closed"
)

// VendorRequest is a caller-persisted bookmark tying a vendor to a
// property, created after a search when the user wants follow-up.
type VendorRequest struct {
	ID         string        `json:"id"`
	Address    string        `json:"address"`
	Category   string        `json:"category"`
	PlaceID    string        `json:"place_id"`
	VendorName string        `json:"vendor_name"`
	Status     RequestStatus `json:"status"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}
