// Package model defines the domain types shared across the compliance and
// vendor subsystems.
package model

// PropertyIdentifiers holds the city identifiers resolved for a property
// address. BIN is the primary lookup key for NYC datasets; BBL, block and
// lot serve as fallbacks when a dataset is not indexed by BIN.
type PropertyIdentifiers struct {
	BIN     string `json:"bin"`
	BBL     string `json:"bbl"`
	Borough string `json:"borough"`
	Block   string `json:"block"`
	Lot     string `json:"lot"`
	Address string `json:"address"`
}

// ViolationSnapshot holds per-property counts of active violations and
// equipment by category. Produced by report generation, consumed read-only
// by the vendor category mapper.
type ViolationSnapshot struct {
	HPDViolationsActive int `json:"hpd_violations_active"`
	DOBViolationsActive int `json:"dob_violations_active"`
	ElevatorDevices     int `json:"elevator_devices"`
	BoilerDevices       int `json:"boiler_devices"`
	ElectricalPermits   int `json:"electrical_permits"`
}

// IsZero reports whether no category has a positive count. Negative counts
// are malformed input and treated as zero.
func (s ViolationSnapshot) IsZero() bool {
	return s.HPDViolationsActive <= 0 &&
		s.DOBViolationsActive <= 0 &&
		s.ElevatorDevices <= 0 &&
		s.BoilerDevices <= 0 &&
		s.ElectricalPermits <= 0
}
