package decoder

import (
	"encoding/binary"
	"fmt"
	"strings"

	"serialscope/models"
)

// Modbus function codes this decoder understands
var modbusFunctions = map[byte]string{
	0x01: "Read Coils",
	0x02: "Read Discrete Inputs",
	0x03: "Read Holding Registers",
	0x04: "Read Input Registers",
	0x05: "Write Single Coil",
	0x06: "Write Single Register",
	0x0F: "Write Multiple Coils",
	0x10: "Write Multiple Registers",
}

// ModbusRTU decodes Modbus RTU frames, validating the trailing CRC-16.
type ModbusRTU struct{}

// NewModbusRTU creates the built-in Modbus RTU decoder
func NewModbusRTU() *ModbusRTU {
	return &ModbusRTU{}
}

func (d *ModbusRTU) Name() string { return "Modbus RTU" }

func (d *ModbusRTU) Description() string {
	return "Decodes Modbus RTU frames with CRC-16 validation"
}

// Decode inspects a raw chunk as a single Modbus RTU frame. It returns nil
// unless the frame carries a known function code or a valid CRC.
func (d *ModbusRTU) Decode(data []byte) *models.DecodedFrame {
	if len(data) < 4 {
		return nil
	}

	slave := data[0]
	fc := data[1]
	isException := fc&0x80 != 0
	baseFC := fc & 0x7F
	fnName, known := modbusFunctions[baseFC]

	crcValid := modbusCRC(data[:len(data)-2]) == binary.LittleEndian.Uint16(data[len(data)-2:])
	if !crcValid && !known {
		return nil
	}

	fields := map[string]any{
		"slaveAddress": int(slave),
		"functionCode": fmt.Sprintf("0x%02X", fc),
		"crcValid":     crcValid,
	}

	var display strings.Builder
	fmt.Fprintf(&display, "slave %d", slave)

	switch {
	case isException:
		fields["exception"] = true
		if len(data) >= 5 {
			fields["exceptionCode"] = int(data[2])
		}
		fmt.Fprintf(&display, " exception FC 0x%02X", baseFC)
	case known:
		fields["function"] = fnName
		fmt.Fprintf(&display, " %s", fnName)
		switch baseFC {
		case 0x03, 0x04:
			// Response: byte count then register data
			if len(data) >= 5 && int(data[2]) == len(data)-5 {
				count := int(data[2]) / 2
				regs := make([]int, 0, count)
				for i := 0; i < count; i++ {
					regs = append(regs, int(binary.BigEndian.Uint16(data[3+2*i:])))
				}
				fields["byteCount"] = int(data[2])
				fields["registers"] = regs
				fmt.Fprintf(&display, ", %d register(s)", count)
			} else if len(data) == 8 {
				// Request: start address and quantity
				fields["startAddress"] = int(binary.BigEndian.Uint16(data[2:]))
				fields["quantity"] = int(binary.BigEndian.Uint16(data[4:]))
			}
		case 0x05, 0x06:
			if len(data) >= 6 {
				fields["address"] = int(binary.BigEndian.Uint16(data[2:]))
				fields["value"] = int(binary.BigEndian.Uint16(data[4:]))
			}
		}
	default:
		fmt.Fprintf(&display, " FC 0x%02X", fc)
	}

	if !crcValid {
		display.WriteString(" (bad CRC)")
	}

	return &models.DecodedFrame{
		Protocol: "Modbus RTU",
		Fields:   fields,
		Display:  display.String(),
	}
}

// modbusCRC computes CRC-16/Modbus: init 0xFFFF, reflected polynomial
// 0xA001, transmitted low byte first.
func modbusCRC(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&1 != 0 {
				crc = crc>>1 ^ 0xA001
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}
