package eit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// DecodeReadings decodes a reading payload. Supported formats:
//   - JSON object matching ReadingsMessage
//   - bare JSON array of numbers
//   - a text line of numbers separated by commas, semicolons or whitespace
func DecodeReadings(payload []byte) (*ReadingsMessage, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrInvalidFormat)
	}

	switch trimmed[0] {
	case '{':
		var msg ReadingsMessage
		if err := json.Unmarshal(trimmed, &msg); err != nil {
			return nil, fmt.Errorf("%w: parsing JSON object: %v", ErrInvalidFormat, err)
		}
		if len(msg.Readings) == 0 {
			return nil, fmt.Errorf("%w: message has no readings", ErrInvalidFormat)
		}
		return &msg, nil

	case '[':
		var readings []float64
		if err := json.Unmarshal(trimmed, &readings); err != nil {
			return nil, fmt.Errorf("%w: parsing JSON array: %v", ErrInvalidFormat, err)
		}
		return &ReadingsMessage{Readings: readings}, nil
	}

	return decodeTextLine(string(trimmed))
}

func decodeTextLine(line string) (*ReadingsMessage, error) {
	fields := strings.FieldsFunc(line, func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})

	readings := make([]float64, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a number", ErrInvalidFormat, f)
		}
		readings = append(readings, v)
	}
	if len(readings) == 0 {
		return nil, fmt.Errorf("%w: no readings in payload", ErrInvalidFormat)
	}
	return &ReadingsMessage{Readings: readings}, nil
}
