package decoder

import (
	"fmt"
	"strconv"
	"strings"

	"serialscope/models"
)

// NMEA decodes NMEA 0183 sentences ($TTSSS,field,...*hh) with XOR checksum
// validation.
type NMEA struct{}

// NewNMEA creates the built-in NMEA 0183 decoder
func NewNMEA() *NMEA {
	return &NMEA{}
}

func (d *NMEA) Name() string { return "NMEA 0183" }

func (d *NMEA) Description() string {
	return "Decodes NMEA 0183 sentences with checksum validation"
}

func (d *NMEA) Decode(data []byte) *models.DecodedFrame {
	s := strings.TrimRight(string(data), "\r\n")
	if len(s) < 7 || s[0] != '$' {
		return nil
	}

	star := strings.LastIndexByte(s, '*')
	if star < 0 || star+3 != len(s) {
		return nil
	}

	body := s[1:star]
	parsed, err := strconv.ParseUint(s[star+1:], 16, 8)
	if err != nil {
		return nil
	}
	want := int(parsed)

	sum := 0
	for _, c := range []byte(body) {
		sum ^= int(c)
	}

	parts := strings.Split(body, ",")
	header := parts[0]
	if len(header) < 3 {
		return nil
	}

	talker, sentence := header[:2], header[2:]

	fields := map[string]any{
		"talker":        talker,
		"sentence":      sentence,
		"fieldCount":    len(parts) - 1,
		"checksumValid": sum == want,
	}

	display := fmt.Sprintf("%s %d field(s)", header, len(parts)-1)
	if sum != want {
		display += " (bad checksum)"
	}

	return &models.DecodedFrame{
		Protocol: "NMEA 0183",
		Fields:   fields,
		Display:  display,
	}
}
