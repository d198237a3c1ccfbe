package updater

import (
	"encoding/binary"

	"github.com/sigurn/crc16"
)

// Every frame exchanged with the bootloader carries a 16 bit FCS, the
// complement of a reflected CCITT CRC, appended least significant byte first.
const (
	FCS_SIZE = 2

	// CRC over a frame including its FCS
	FCS_GOOD uint16 = 0xF0B8
)

var fcsTable = crc16.MakeTable(crc16.CRC16_MCRF4XX)

// CRC16 returns the frame CRC (seed 0xFFFF, no final xor) of data.
func CRC16(data []byte) uint16 {
	return crc16.Checksum(data, fcsTable)
}

// AppendFCS returns data followed by its frame check sequence.
func AppendFCS(data []byte) []byte {
	frame := make([]byte, len(data), len(data)+FCS_SIZE)
	copy(frame, data)
	var fcs [FCS_SIZE]byte
	binary.LittleEndian.PutUint16(fcs[:], ^CRC16(data))
	return append(frame, fcs[:]...)
}

// CheckFCS validates a received frame and returns its payload.
func CheckFCS(frame []byte) ([]byte, error) {
	if len(frame) < FCS_SIZE || CRC16(frame) != FCS_GOOD {
		return nil, ErrBadFCS
	}
	return frame[:len(frame)-FCS_SIZE], nil
}
