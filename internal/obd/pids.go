// Package obd implements ELM327 scanner communication: serial transport,
// command framing and response parsing for OBD2 modes 01, 03 and 09.
package obd

// Reading is a decoded sensor value for one PID.
type Reading struct {
	PID         string  `json:"pid"`
	Value       float64 `json:"value"`
	Unit        string  `json:"unit"`
	Description string  `json:"description"`
}

// pidSpec describes how to decode a mode 01 PID.
type pidSpec struct {
	description string
	unit        string
	minBytes    int
	convert     func(data []byte) float64
}

// pidTable covers the PIDs the scan worker and sensor endpoint read.
// Formulas follow SAE J1979 (A is the first data byte, B the second).
var pidTable = map[string]pidSpec{
	"0105": {
		description: "Engine Coolant Temperature",
		unit:        "°C",
		minBytes:    1,
		convert:     func(d []byte) float64 { return float64(d[0]) - 40 },
	},
	"010C": {
		description: "Engine RPM",
		unit:        "RPM",
		minBytes:    2,
		convert:     func(d []byte) float64 { return (float64(d[0])*256 + float64(d[1])) / 4 },
	},
	"010D": {
		description: "Vehicle Speed",
		unit:        "km/h",
		minBytes:    1,
		convert:     func(d []byte) float64 { return float64(d[0]) },
	},
	"010F": {
		description: "Intake Air Temperature",
		unit:        "°C",
		minBytes:    1,
		convert:     func(d []byte) float64 { return float64(d[0]) - 40 },
	},
	"0111": {
		description: "Throttle Position",
		unit:        "%",
		minBytes:    1,
		convert:     func(d []byte) float64 { return float64(d[0]) * 100 / 255 },
	},
	"012F": {
		description: "Fuel Tank Level",
		unit:        "%",
		minBytes:    1,
		convert:     func(d []byte) float64 { return float64(d[0]) * 100 / 255 },
	},
}

// CommonPIDs are the default set read during a scan session.
var CommonPIDs = []string{"0105", "010C", "010D", "010F", "0111"}

// PIDDescription returns the description for a PID, or a generic label.
func PIDDescription(pid string) string {
	if spec, ok := pidTable[pid]; ok {
		return spec.description
	}
	return "PID " + pid
}

// PIDUnit returns the unit for a PID, empty when unknown.
func PIDUnit(pid string) string {
	if spec, ok := pidTable[pid]; ok {
		return spec.unit
	}
	return ""
}

// SupportedPID reports whether the decoder knows the given PID.
func SupportedPID(pid string) bool {
	_, ok := pidTable[pid]
	return ok
}
