// Package dtc provides lookup, categorization and severity estimation for
// OBD2 diagnostic trouble codes.
package dtc

import (
	"regexp"
	"strings"
)

// codePattern matches a standard five-character DTC: system letter plus
// four hex digits (e.g. P0420, U0100).
var codePattern = regexp.MustCompile(`^[PBCU][0-9A-F]{4}$`)

// Severity levels for trouble codes.
const (
	SeverityCritical = "Critical"
	SeverityModerate = "Moderate"
	SeverityLow      = "Low"
)

// knownCodes holds descriptions for the codes seen most often in the field.
// Unlisted codes fall back to a generic per-system description.
var knownCodes = map[string]string{
	"P0300": "Random/Multiple Cylinder Misfire Detected",
	"P0301": "Cylinder 1 Misfire Detected",
	"P0302": "Cylinder 2 Misfire Detected",
	"P0303": "Cylinder 3 Misfire Detected",
	"P0304": "Cylinder 4 Misfire Detected",
	"P0305": "Cylinder 5 Misfire Detected",
	"P0306": "Cylinder 6 Misfire Detected",
	"P0307": "Cylinder 7 Misfire Detected",
	"P0308": "Cylinder 8 Misfire Detected",
	"P0171": "System Too Lean (Bank 1)",
	"P0172": "System Too Rich (Bank 1)",
	"P0174": "System Too Lean (Bank 2)",
	"P0175": "System Too Rich (Bank 2)",
	"P0420": "Catalyst System Efficiency Below Threshold (Bank 1)",
	"P0430": "Catalyst System Efficiency Below Threshold (Bank 2)",
	"P0441": "Evaporative Emission Control System Incorrect Purge Flow",
	"P0442": "Evaporative Emission Control System Leak Detected (small leak)",
	"P0443": "Evaporative Emission Control System Purge Control Valve Circuit Malfunction",
	"P0446": "Evaporative Emission Control System Vent Control Circuit Malfunction",
	"P0455": "Evaporative Emission Control System Leak Detected (large leak)",
	"P0500": "Vehicle Speed Sensor Malfunction",
	"P0506": "Idle Control System RPM Lower Than Expected",
	"P0507": "Idle Control System RPM Higher Than Expected",
	"P0562": "System Voltage Low",
	"P0563": "System Voltage High",
	"P0601": "Internal Control Module Memory Check Sum Error",
	"P0700": "Transmission Control System Malfunction",
	"P0750": "Shift Solenoid A Malfunction",
	"P0751": "Shift Solenoid A Performance or Stuck Off",
	"P0752": "Shift Solenoid A Stuck On",
	"P0753": "Shift Solenoid A Electrical",
	"P0755": "Shift Solenoid B Malfunction",
	"P0756": "Shift Solenoid B Performance or Stuck Off",
	"P0757": "Shift Solenoid B Stuck On",
	"P0758": "Shift Solenoid B Electrical",
	"P0760": "Shift Solenoid C Malfunction",
	"P0761": "Shift Solenoid C Performance or Stuck Off",
	"P0762": "Shift Solenoid C Stuck On",
	"P0763": "Shift Solenoid C Electrical",
	"P1000": "OBD System Readiness Test Not Complete",
	"U0001": "High Speed CAN Communication Bus",
	"U0100": "Lost Communication With ECM/PCM 'A'",
	"U0101": "Lost Communication With TCM",
	"U0155": "Lost Communication With Instrument Panel Control Module",
}

var systems = map[byte]string{
	'P': "Powertrain",
	'B': "Body",
	'C': "Chassis",
	'U': "Network/Communication",
}

var categories = map[byte]string{
	'P': "Powertrain (Engine/Transmission)",
	'B': "Body (Interior/Exterior)",
	'C': "Chassis (Brakes/Steering/Suspension)",
	'U': "Network/Communication",
}

// IsValid reports whether code is a well-formed DTC.
func IsValid(code string) bool {
	return codePattern.MatchString(strings.ToUpper(strings.TrimSpace(code)))
}

// Normalize trims and uppercases a code for lookup.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Describe returns a human-readable description for a DTC.
// Unknown but well-formed codes get a generic per-system description;
// malformed input returns "Unknown code".
func Describe(code string) string {
	code = Normalize(code)

	if desc, ok := knownCodes[code]; ok {
		return desc
	}

	return genericDescription(code)
}

// Known reports whether a code is present in the built-in table.
func Known(code string) bool {
	_, ok := knownCodes[Normalize(code)]
	return ok
}

func genericDescription(code string) string {
	if len(code) < 5 {
		return "Unknown code"
	}

	system, ok := systems[code[0]]
	if !ok {
		system = "Unknown System"
	}
	return system + " Diagnostic Trouble Code " + code
}

// Categorize returns the vehicle system a code belongs to.
func Categorize(code string) string {
	code = Normalize(code)
	if code == "" {
		return "Unknown"
	}

	if cat, ok := categories[code[0]]; ok {
		return cat
	}
	return "Unknown System"
}

// criticalCodes need immediate attention: active misfires and
// charging-system voltage faults.
var criticalCodes = map[string]bool{
	"P0300": true, "P0301": true, "P0302": true, "P0303": true,
	"P0304": true, "P0562": true, "P0563": true,
}

// emissionsCodes degrade emissions but rarely strand the vehicle.
var emissionsCodes = map[string]bool{
	"P0420": true, "P0430": true, "P0441": true, "P0442": true, "P0455": true,
}

// Severity estimates how urgently a code should be addressed.
func Severity(code string) string {
	code = Normalize(code)

	switch {
	case criticalCodes[code]:
		return SeverityCritical
	case emissionsCodes[code]:
		return SeverityModerate
	case strings.HasPrefix(code, "U"):
		return SeverityModerate
	default:
		return SeverityLow
	}
}
