package updater

import (
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Transport is the byte level connection to the bootloader UART.
type Transport interface {
	Write(p []byte) (n int, err error)

	// ReadN reads until n bytes arrived or the read timeout expired. A
	// timeout is not an error, the caller sees fewer (or no) bytes.
	ReadN(n int) ([]byte, error)

	// ResetInput discards received but unread bytes.
	ResetInput() error

	// ResetOutput discards bytes not yet transmitted. Serial ports flush
	// both directions, so unread input is dropped as well.
	ResetOutput() error
}

// LineDriver controls the nRST and nUPD lines of the device. Adapters
// without controllable lines use a nil LineDriver.
type LineDriver interface {
	WriteLatch(mask, value uint16) error
	ReadLatch() (uint16, error)
}

type State int

const (
	STATE_IDLE State = iota
	STATE_BOOT_RESET
	STATE_HELLO
	STATE_PROGRAMMING
	STATE_RESTARTING
	STATE_APP_RESET
	STATE_FAILED
)

func (s State) String() string {
	switch s {
	case STATE_IDLE:
		return "Idle"
	case STATE_BOOT_RESET:
		return "BootReset"
	case STATE_HELLO:
		return "Hello"
	case STATE_PROGRAMMING:
		return "Programming"
	case STATE_RESTARTING:
		return "Restarting"
	case STATE_APP_RESET:
		return "AppReset"
	case STATE_FAILED:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Session drives a single bootloader over one transport. It is not safe for
// concurrent use.
type Session struct {
	t     Transport
	lines LineDriver
	cfg   Config
	log   log.FieldLogger

	state      State
	hello      *HelloResponse
	recoveries int
}

func NewSession(t Transport, lines LineDriver, opts ...Option) *Session {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Session{
		t:     t,
		lines: lines,
		cfg:   cfg,
		log:   cfg.Logger,
		state: STATE_IDLE,
	}
}

func (s *Session) State() State { return s.state }

// LastHello returns the response of the last successful HELLO exchange.
func (s *Session) LastHello() *HelloResponse { return s.hello }

// Recoveries returns the number of recovery pulses issued so far.
func (s *Session) Recoveries() int { return s.recoveries }

func (s *Session) setState(st State) {
	if st != s.state {
		s.log.WithField("state", st).Debug("session state")
	}
	s.state = st
}

func (s *Session) writeLatch(mask, value uint16) error {
	if s.lines == nil {
		return nil
	}
	if err := s.lines.WriteLatch(mask, value); err != nil {
		return errors.Wrapf(err, "write latch mask %#x value %#x", mask, value)
	}
	return nil
}

func (s *Session) reset(typ uint16) (err error) {
	if err = s.writeLatch(LINE_NRST|LINE_NUPD, typ); err != nil {
		return err
	}
	if err = s.writeLatch(LINE_NRST, LINE_NRST); err != nil {
		return err
	}
	time.Sleep(s.cfg.ResetDelay)
	if err = s.t.ResetInput(); err != nil {
		return errors.Wrap(err, "reset input buffer")
	}
	return s.writeLatch(LINE_NUPD, LINE_NUPD)
}

// ResetToBootloader pulses nRST while nUPD is held low, which makes the
// device stay in its bootloader.
func (s *Session) ResetToBootloader() error {
	s.setState(STATE_BOOT_RESET)
	s.hello = nil
	return s.reset(RESET_BOOT)
}

// ResetToApplication pulses nRST with nUPD released.
func (s *Session) ResetToApplication() error {
	s.setState(STATE_APP_RESET)
	return s.reset(RESET_APP)
}

// Recover toggles nUPD without touching nRST. The bootloader drops its
// receive state and waits for a new HELLO.
func (s *Session) Recover() (err error) {
	s.recoveries++
	s.log.WithField("recoveries", s.recoveries).Debug("recovery pulse")
	if err = s.t.ResetOutput(); err != nil {
		return errors.Wrap(err, "reset output buffer")
	}
	time.Sleep(s.cfg.RecoverDelay)
	if err = s.writeLatch(LINE_NUPD, 0); err != nil {
		return err
	}
	time.Sleep(s.cfg.RecoverDelay)
	if err = s.writeLatch(LINE_NUPD, LINE_NUPD); err != nil {
		return err
	}
	s.hello = nil
	return nil
}

func (s *Session) send(cmd *Command) error {
	s.log.WithField("cmd", cmd).Debug("send command")
	if err := s.t.ResetInput(); err != nil {
		return errors.Wrap(err, "reset input buffer")
	}
	return s.write(cmd.ToWire())
}

func (s *Session) write(frame []byte) error {
	if _, err := s.t.Write(frame); err != nil {
		return errors.Wrap(err, "write")
	}
	return nil
}

// recv reads up to max bytes. Only transport failures are returned as plain
// errors, a silent device is a protocol error.
func (s *Session) recv(op string, max int) ([]byte, error) {
	data, err := s.t.ReadN(max)
	if err != nil {
		return nil, errors.Wrap(err, "read")
	}
	if len(data) == 0 {
		return nil, protoErr(op, ErrTimeout)
	}
	return data, nil
}

func (s *Session) recvResponse(op string) (*Response, error) {
	data, err := s.recv(op, RESPONSE_SIZE)
	if err != nil {
		return nil, err
	}
	resp := &Response{}
	if err = resp.FromWire(data); err != nil {
		return nil, protoErr(op, err)
	}
	return resp, nil
}

func checkResponse(op string, expected ResponseType, resp *Response) error {
	if resp.Type != expected || resp.Code != NO_ERROR {
		return &ProtocolError{Op: op, Expected: expected, Type: resp.Type, Code: resp.Code}
	}
	return nil
}

// Hello negotiates the sector size and reports the installed versions.
func (s *Session) Hello() (hello *HelloResponse, err error) {
	s.setState(STATE_HELLO)
	if err = s.send(&Command{Type: CMD_HELLO}); err != nil {
		return nil, err
	}
	data, err := s.recv("HELLO", HELLO_EXTENDED_SIZE+FCS_SIZE)
	if err != nil {
		return nil, err
	}
	payload, err := CheckFCS(data)
	if err != nil {
		return nil, protoErr("HELLO", err)
	}
	hello = &HelloResponse{}
	if err = hello.FromWire(payload); err != nil {
		return nil, protoErr("HELLO", err)
	}
	if hello.SectorSize == 0 {
		return nil, protoErr("HELLO", errors.New("sector size 0"))
	}
	s.log.WithFields(log.Fields{
		"bootloader":  hello.Bootloader,
		"application": hello.Application,
		"sector":      hello.SectorSize,
	}).Debug("hello")
	s.hello = hello
	return hello, nil
}

// Prog writes data to flash at start. The device requests every chunk with
// NXT and confirms the complete image, including its hash, with END.
func (s *Session) Prog(start uint32, data []byte) (err error) {
	if s.hello == nil {
		return errors.New("PROG requires a HELLO exchange first")
	}
	s.setState(STATE_PROGRAMMING)
	sector := int(s.hello.SectorSize)
	cmd := &Command{Type: CMD_PROG, Args: [3]uint32{start, uint32(len(data)), ImageHash(data)}}
	if err = s.send(cmd); err != nil {
		return err
	}

	total := len(data)
	chunk := 0
	for done := 0; done < total; done += sector {
		end := done + sector
		if end > total {
			end = total
		}
		resp, err := s.recvResponse("PROG")
		if err != nil {
			return err
		}
		if err = checkResponse("PROG", RESP_NXT, resp); err != nil {
			s.log.WithFields(log.Fields{"addr": start + uint32(done), "code": resp.Code}).Debug("chunk refused")
			return err
		}
		if err = s.write(AppendFCS(data[done:end])); err != nil {
			return err
		}
		chunk++
		s.progress(Progress{Op: CMD_PROG, Chunk: chunk, Done: end, Total: total})
	}

	resp, err := s.recvResponse("PROG")
	if err != nil {
		return err
	}
	return checkResponse("PROG", RESP_END, resp)
}

// Read reads length bytes of device memory at addr in chunks of at most
// READ_CHUNK_SIZE bytes.
func (s *Session) Read(addr uint32, length int) (res []byte, err error) {
	res = make([]byte, 0, length)
	chunk := 0
	for done := 0; done < length; done += READ_CHUNK_SIZE {
		size := length - done
		if size > READ_CHUNK_SIZE {
			size = READ_CHUNK_SIZE
		}
		cmd := &Command{Type: CMD_READ, Args: [3]uint32{addr + uint32(done), uint32(size), 0}}
		if err = s.send(cmd); err != nil {
			return nil, err
		}
		data, err := s.recv("READ", size+FCS_SIZE)
		if err != nil {
			return nil, err
		}
		if len(data) == RESPONSE_SIZE {
			resp := &Response{}
			if err = resp.FromWire(data); err != nil {
				return nil, protoErr("READ", err)
			}
			if err = checkResponse("READ", RESP_END, resp); err != nil {
				return nil, err
			}
			return nil, protoErr("READ", ErrShortResponse)
		}
		payload, err := CheckFCS(data)
		if err != nil {
			return nil, protoErr("READ", err)
		}
		if len(payload) != size {
			return nil, protoErr("READ", ErrShortResponse)
		}
		res = append(res, payload...)
		chunk++
		s.progress(Progress{Op: CMD_READ, Chunk: chunk, Done: done + size, Total: length})
	}
	return res, nil
}

// Restart starts the application. Bootloaders without RESTART support are
// reset into the application through the control lines.
func (s *Session) Restart() (err error) {
	s.setState(STATE_RESTARTING)
	if err = s.send(&Command{Type: CMD_RESTART}); err != nil {
		return err
	}
	resp, err := s.recvResponse("RESTART")
	if err != nil {
		return err
	}
	if resp.Type == RESP_END && resp.Code == UNKNOWN_CMD {
		s.log.Debug("RESTART not supported, resetting into application")
		return s.ResetToApplication()
	}
	if err = checkResponse("RESTART", RESP_END, resp); err != nil {
		return err
	}
	s.setState(STATE_APP_RESET)
	return nil
}

func (s *Session) progress(p Progress) {
	if s.cfg.ProgressCallback != nil {
		s.cfg.ProgressCallback(p)
	}
}
