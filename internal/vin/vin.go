// Package vin validates VINs and decodes them through the NHTSA vPIC API.
package vin

import (
	"errors"
	"regexp"
	"strings"
)

// vinPattern matches a 17-character VIN. I, O and Q are excluded from the
// VIN alphabet to avoid confusion with 1 and 0.
var vinPattern = regexp.MustCompile(`^[A-HJ-NPR-Z0-9]{17}$`)

// Validation errors.
var (
	ErrInvalidVIN = errors.New("invalid VIN")
)

// Normalize trims and uppercases a VIN.
func Normalize(vin string) string {
	return strings.ToUpper(strings.TrimSpace(vin))
}

// Validate checks VIN length and alphabet.
func Validate(vin string) error {
	if !vinPattern.MatchString(Normalize(vin)) {
		return ErrInvalidVIN
	}
	return nil
}
