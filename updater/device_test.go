package updater

import (
	"bytes"
	"errors"
)

type latchWrite struct {
	Mask, Value uint16
}

// simDevice simulates the bootloader end of the UART together with the
// nRST/nUPD lines. Responses are produced when a complete frame was written.
type simDevice struct {
	hello   HelloResponse
	memBase uint32
	mem     []byte

	// codes returned for successive PROG commands, NO_ERROR once exhausted
	progFailures []ResponseCode
	// number of HELLO commands left unanswered
	silentHellos int
	corruptHello bool
	noRestart    bool
	writeErr     error

	rx      []byte
	pending []byte
	prog    *simProg

	commands     []Command
	readSizes    []uint32
	latches      []latchWrite
	latch        uint16
	inputResets  int
	outputResets int
	flashed      []byte
	flashedAt    uint32
	restarted    bool
}

type simProg struct {
	start uint32
	size  int
	hash  uint32
	data  []byte
	chunk int
}

func newSimDevice() *simDevice {
	return &simDevice{
		hello: HelloResponse{
			SectorSize: 2048,
		},
		latch: LINE_NRST | LINE_NUPD,
	}
}

func (d *simDevice) respond(t ResponseType, c ResponseCode) {
	d.pending = append(d.pending, byte(t), byte(c))
}

func (d *simDevice) Write(p []byte) (int, error) {
	if d.writeErr != nil {
		return 0, d.writeErr
	}
	d.rx = append(d.rx, p...)
	if d.prog != nil {
		d.handleChunk()
		return len(p), nil
	}
	for len(d.rx) >= COMMAND_SIZE+FCS_SIZE {
		cmd := Command{}
		frame := d.rx[:COMMAND_SIZE+FCS_SIZE]
		d.rx = d.rx[COMMAND_SIZE+FCS_SIZE:]
		if err := cmd.FromWire(frame); err != nil {
			d.respond(RESP_END, BAD_MSG)
			continue
		}
		d.commands = append(d.commands, cmd)
		d.handle(cmd)
	}
	return len(p), nil
}

func (d *simDevice) handle(cmd Command) {
	switch cmd.Type {
	case CMD_HELLO:
		if d.silentHellos > 0 {
			d.silentHellos--
			return
		}
		frame := AppendFCS(d.hello.ToWire())
		if d.corruptHello {
			frame[3] ^= 0x10
		}
		d.pending = append(d.pending, frame...)
	case CMD_PROG:
		code := NO_ERROR
		if len(d.progFailures) > 0 {
			code = d.progFailures[0]
			d.progFailures = d.progFailures[1:]
		}
		if code != NO_ERROR {
			d.respond(RESP_END, code)
			return
		}
		d.prog = &simProg{start: cmd.Args[0], size: int(cmd.Args[1]), hash: cmd.Args[2]}
		d.respond(RESP_NXT, NO_ERROR)
	case CMD_READ:
		addr, size := cmd.Args[0], cmd.Args[1]
		d.readSizes = append(d.readSizes, size)
		if addr < d.memBase || int(addr-d.memBase)+int(size) > len(d.mem) {
			d.respond(RESP_END, BAD_FLASH_ADDRESS)
			return
		}
		off := int(addr - d.memBase)
		d.pending = append(d.pending, AppendFCS(d.mem[off:off+int(size)])...)
	case CMD_RESTART:
		if d.noRestart {
			d.respond(RESP_END, UNKNOWN_CMD)
			return
		}
		d.restarted = true
		d.respond(RESP_END, NO_ERROR)
	default:
		d.respond(RESP_END, UNKNOWN_CMD)
	}
}

func (d *simDevice) handleChunk() {
	p := d.prog
	want := int(d.hello.SectorSize)
	if rest := p.size - len(p.data); rest < want {
		want = rest
	}
	if len(d.rx) < want+FCS_SIZE {
		return
	}
	frame := d.rx[:want+FCS_SIZE]
	d.rx = d.rx[want+FCS_SIZE:]
	payload, err := CheckFCS(frame)
	if err != nil {
		d.prog = nil
		d.respond(RESP_END, BAD_MSG)
		return
	}
	p.data = append(p.data, payload...)
	p.chunk++
	if len(p.data) < p.size {
		d.respond(RESP_NXT, NO_ERROR)
		return
	}
	d.prog = nil
	if ImageHash(p.data) != p.hash {
		d.respond(RESP_END, VERIFY_FLASH_FAILED)
		return
	}
	d.flashed = p.data
	d.flashedAt = p.start
	d.respond(RESP_END, NO_ERROR)
}

func (d *simDevice) ReadN(n int) ([]byte, error) {
	if n > len(d.pending) {
		n = len(d.pending)
	}
	res := append([]byte(nil), d.pending[:n]...)
	d.pending = d.pending[n:]
	return res, nil
}

func (d *simDevice) ResetInput() error {
	d.inputResets++
	d.pending = nil
	return nil
}

// ResetOutput flushes both directions like a tty flush.
func (d *simDevice) ResetOutput() error {
	d.outputResets++
	d.pending = nil
	return nil
}

func (d *simDevice) WriteLatch(mask, value uint16) error {
	d.latches = append(d.latches, latchWrite{mask, value})
	d.latch = d.latch&^mask | value&mask
	// nUPD low drops the receive state of the bootloader
	if d.latch&LINE_NUPD == 0 {
		d.rx = nil
		d.prog = nil
	}
	return nil
}

func (d *simDevice) ReadLatch() (uint16, error) {
	return d.latch, nil
}

func (d *simDevice) commandTypes() []CommandType {
	res := make([]CommandType, len(d.commands))
	for i, c := range d.commands {
		res[i] = c.Type
	}
	return res
}

var errWire = errors.New("wire broken")

func pattern(n int) []byte {
	var b bytes.Buffer
	for i := 0; i < n; i++ {
		b.WriteByte(byte(i*13 + i>>8))
	}
	return b.Bytes()
}
