package obd

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Parse errors.
var (
	ErrNoData         = errors.New("no data from scanner")
	ErrUnsupportedPID = errors.New("unsupported PID")
	ErrBadResponse    = errors.New("malformed scanner response")
)

// dtcSystems maps the top two bits of the first DTC byte to the
// system letter.
var dtcSystems = [4]byte{'P', 'C', 'B', 'U'}

// parseDTCPair decodes one two-byte DTC from a mode 03 response.
// Returns "" for the all-zero padding pair.
func parseDTCPair(first, second byte) string {
	if first == 0 && second == 0 {
		return ""
	}

	system := dtcSystems[(first&0xC0)>>6]
	code := (uint16(first&0x3F) << 8) | uint16(second)

	return fmt.Sprintf("%c%04X", system, code)
}

// ParseDTCResponse extracts trouble codes from a mode 03 response.
// Response lines look like "43 01 33 00 00 00"; each pair of data bytes
// after the 43 header encodes one code, zero pairs are padding.
func ParseDTCResponse(response string) ([]string, error) {
	if isNoData(response) {
		return nil, nil
	}

	var codes []string
	for _, line := range strings.Split(response, "\n") {
		fields := strings.Fields(strings.TrimSpace(line))
		if len(fields) == 0 || fields[0] != "43" {
			continue
		}

		data, err := decodeHexFields(fields[1:])
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrBadResponse, line)
		}

		for i := 0; i+1 < len(data); i += 2 {
			if code := parseDTCPair(data[i], data[i+1]); code != "" {
				codes = append(codes, code)
			}
		}
	}

	return codes, nil
}

// ParsePIDResponse decodes a mode 01 response for the given PID into a
// Reading. Response lines look like "41 05 7B" for request "0105".
func ParsePIDResponse(pid, response string) (*Reading, error) {
	spec, ok := pidTable[pid]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedPID, pid)
	}
	if isNoData(response) {
		return nil, ErrNoData
	}

	want := strings.ToUpper(pid[2:])

	for _, line := range strings.Split(response, "\n") {
		fields := strings.Fields(strings.TrimSpace(line))
		if len(fields) < 2 || fields[0] != "41" || strings.ToUpper(fields[1]) != want {
			continue
		}

		data, err := decodeHexFields(fields[2:])
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrBadResponse, line)
		}
		if len(data) < spec.minBytes {
			return nil, fmt.Errorf("%w: PID %s needs %d data bytes, got %d", ErrBadResponse, pid, spec.minBytes, len(data))
		}

		return &Reading{
			PID:         pid,
			Value:       spec.convert(data),
			Unit:        spec.unit,
			Description: spec.description,
		}, nil
	}

	return nil, ErrNoData
}

// ParseVIN decodes a mode 09 PID 02 response into the vehicle's VIN.
// Multi-frame responses look like "49 02 01 31 47 31 ..." where the third
// field is the frame index and the rest are ASCII bytes.
func ParseVIN(response string) (string, error) {
	if isNoData(response) {
		return "", ErrNoData
	}

	var raw []byte
	for _, line := range strings.Split(response, "\n") {
		fields := strings.Fields(strings.TrimSpace(line))
		if len(fields) < 3 || fields[0] != "49" || fields[1] != "02" {
			continue
		}

		// fields[2] is the frame sequence number
		data, err := decodeHexFields(fields[3:])
		if err != nil {
			return "", fmt.Errorf("%w: %s", ErrBadResponse, line)
		}
		raw = append(raw, data...)
	}

	vin := strings.TrimFunc(string(raw), func(r rune) bool {
		return r == 0 || r == ' '
	})
	if vin == "" {
		return "", ErrNoData
	}

	return vin, nil
}

// ParseCalibrationIDs decodes a mode 09 PID 04 response into the ECU
// calibration identifiers, one per response line.
func ParseCalibrationIDs(response string) ([]string, error) {
	if isNoData(response) {
		return nil, nil
	}

	var ids []string
	for _, line := range strings.Split(response, "\n") {
		fields := strings.Fields(strings.TrimSpace(line))
		if len(fields) < 3 || fields[0] != "49" || fields[1] != "04" {
			continue
		}

		data, err := decodeHexFields(fields[3:])
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrBadResponse, line)
		}

		id := strings.TrimFunc(string(data), func(r rune) bool {
			return r == 0 || r == ' '
		})
		if id != "" {
			ids = append(ids, id)
		}
	}

	return ids, nil
}

func decodeHexFields(fields []string) ([]byte, error) {
	data := make([]byte, 0, len(fields))
	for _, f := range fields {
		b, err := hex.DecodeString(f)
		if err != nil || len(b) != 1 {
			return nil, fmt.Errorf("invalid hex byte %q", f)
		}
		data = append(data, b[0])
	}
	return data, nil
}

func isNoData(response string) bool {
	trimmed := strings.TrimSpace(response)
	return trimmed == "" || strings.HasPrefix(trimmed, "NO DATA")
}
