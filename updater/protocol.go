package updater

import (
	"encoding/binary"
	"fmt"

	"github.com/mame82/fotaflash/fota"
)

/*
UART frame to bootloader:
guint32		type;
guint32		arg0;
guint32		arg1;
guint32		arg2;
guint16		fcs;

Responses are a bare (type, code) byte pair. HELLO and READ answer with a
payload followed by an FCS instead.
*/

type CommandType uint32

const (
	CMD_HELLO   CommandType = 0
	CMD_PROG    CommandType = 1
	CMD_READ    CommandType = 2
	CMD_RESTART CommandType = 3
)

func (c CommandType) String() string {
	switch c {
	case CMD_HELLO:
		return "HELLO"
	case CMD_PROG:
		return "PROG"
	case CMD_READ:
		return "READ"
	case CMD_RESTART:
		return "RESTART"
	default:
		return fmt.Sprintf("CMD_%#02x", uint32(c))
	}
}

type ResponseType byte

const (
	RESP_NXT ResponseType = 0x55
	RESP_END ResponseType = 0xAA
)

func (t ResponseType) String() string {
	switch t {
	case RESP_NXT:
		return "NXT"
	case RESP_END:
		return "END"
	default:
		return fmt.Sprintf("%#02x", byte(t))
	}
}

type ResponseCode byte

const (
	NO_ERROR                ResponseCode = 0
	BAD_MSG                 ResponseCode = 1
	UNKNOWN_CMD             ResponseCode = 2
	INVALID_CMD             ResponseCode = 3
	GENERAL_FLASH_FAILURE   ResponseCode = 4
	WRITE_FLASH_NOT_ENABLED ResponseCode = 5
	BAD_FLASH_ADDRESS       ResponseCode = 6
	ERASE_FLASH_FAILED      ResponseCode = 7
	BAD_FLASH_LENGTH        ResponseCode = 8
	INACCESSIBLE_FLASH      ResponseCode = 9
	FLASH_COPIER_BUSY       ResponseCode = 10
	PROG_FLASH_FAILED       ResponseCode = 11
	VERIFY_FLASH_FAILED     ResponseCode = 12
	NO_VALID_BOOTLOADER     ResponseCode = 13
)

var responseCodeNames = map[ResponseCode]string{
	NO_ERROR:                "NO_ERROR",
	BAD_MSG:                 "BAD_MSG",
	UNKNOWN_CMD:             "UNKNOWN_CMD",
	INVALID_CMD:             "INVALID_CMD",
	GENERAL_FLASH_FAILURE:   "GENERAL_FLASH_FAILURE",
	WRITE_FLASH_NOT_ENABLED: "WRITE_FLASH_NOT_ENABLED",
	BAD_FLASH_ADDRESS:       "BAD_FLASH_ADDRESS",
	ERASE_FLASH_FAILED:      "ERASE_FLASH_FAILED",
	BAD_FLASH_LENGTH:        "BAD_FLASH_LENGTH",
	INACCESSIBLE_FLASH:      "INACCESSIBLE_FLASH",
	FLASH_COPIER_BUSY:       "FLASH_COPIER_BUSY",
	PROG_FLASH_FAILED:       "PROG_FLASH_FAILED",
	VERIFY_FLASH_FAILED:     "VERIFY_FLASH_FAILED",
	NO_VALID_BOOTLOADER:     "NO_VALID_BOOTLOADER",
}

func (c ResponseCode) String() string {
	if name, ok := responseCodeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("CODE_%d", byte(c))
}

const (
	COMMAND_SIZE  = 16
	RESPONSE_SIZE = 2

	HELLO_LEGACY_SIZE   = 6 + 2 + 6 + 2 + 2
	HELLO_EXTENDED_SIZE = HELLO_LEGACY_SIZE + 6 + 2

	// client side ceiling of a single READ request
	READ_CHUNK_SIZE = 2048
)

// Control lines of the adapter wired to the device.
const (
	LINE_NRST uint16 = 1 << 0
	LINE_NUPD uint16 = 1 << 2
)

// Latch values applied to nRST|nUPD while the device is held in reset.
// Releasing nRST with nUPD low enters the bootloader.
const (
	RESET_BOOT uint16 = 0
	RESET_APP  uint16 = LINE_NUPD
)

type Command struct {
	Type CommandType
	Args [3]uint32
}

func (c *Command) String() string {
	return fmt.Sprintf("%s %#08x %#x %#08x", c.Type, c.Args[0], c.Args[1], c.Args[2])
}

func (c *Command) payload() []byte {
	payload := make([]byte, COMMAND_SIZE)
	binary.LittleEndian.PutUint32(payload[0:], uint32(c.Type))
	for i, a := range c.Args {
		binary.LittleEndian.PutUint32(payload[4+4*i:], a)
	}
	return payload
}

// ToWire returns the framed command including its FCS.
func (c *Command) ToWire() []byte {
	return AppendFCS(c.payload())
}

func (c *Command) FromWire(frame []byte) (err error) {
	payload, err := CheckFCS(frame)
	if err != nil {
		return err
	}
	if len(payload) != COMMAND_SIZE {
		return ErrShortResponse
	}
	c.Type = CommandType(binary.LittleEndian.Uint32(payload[0:]))
	for i := range c.Args {
		c.Args[i] = binary.LittleEndian.Uint32(payload[4+4*i:])
	}
	return nil
}

type Response struct {
	Type ResponseType
	Code ResponseCode
}

func (r *Response) String() string {
	return fmt.Sprintf("%s/%s", r.Type, r.Code)
}

func (r *Response) FromWire(payload []byte) (err error) {
	if len(payload) != RESPONSE_SIZE {
		return ErrShortResponse
	}
	r.Type = ResponseType(payload[0])
	r.Code = ResponseCode(payload[1])
	return nil
}

func (r *Response) ToWire() []byte {
	return []byte{byte(r.Type), byte(r.Code)}
}

// HelloResponse carries the component versions and the sector size the
// bootloader negotiates. Secondary is only reported by bootloaders with a
// FOTA slot and is ID_MISSING otherwise.
type HelloResponse struct {
	Bootloader  fota.VersionRecord
	Application fota.VersionRecord
	SectorSize  uint16
	Secondary   fota.VersionRecord
	Extended    bool
}

func (h *HelloResponse) FromWire(payload []byte) (err error) {
	switch len(payload) {
	case HELLO_LEGACY_SIZE:
		h.Extended = false
	case HELLO_EXTENDED_SIZE:
		h.Extended = true
	default:
		return ErrShortResponse
	}
	h.Bootloader.FromWire(payload[0:8])
	h.Application.FromWire(payload[8:16])
	h.SectorSize = binary.LittleEndian.Uint16(payload[16:18])
	h.Secondary = fota.VersionRecord{}
	if h.Extended {
		h.Secondary.FromWire(payload[18:26])
	}
	return nil
}

func (h *HelloResponse) ToWire() []byte {
	payload := make([]byte, 0, HELLO_EXTENDED_SIZE)
	payload = append(payload, h.Bootloader.ToWire()...)
	payload = append(payload, h.Application.ToWire()...)
	payload = append(payload, byte(h.SectorSize), byte(h.SectorSize>>8))
	if h.Extended {
		payload = append(payload, h.Secondary.ToWire()...)
	}
	return payload
}

// Applications lists the installed application versions, the secondary
// slot ahead of the primary one.
func (h *HelloResponse) Applications() []fota.VersionRecord {
	if h.Extended && !h.Secondary.IsMissing() {
		return []fota.VersionRecord{h.Secondary, h.Application}
	}
	return []fota.VersionRecord{h.Application}
}

func (h *HelloResponse) String() string {
	return fmt.Sprintf("Application: %s, Bootloader: %s, sector size %d",
		fota.FormatVersions(h.Applications()), h.Bootloader, h.SectorSize)
}
