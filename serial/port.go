// Package serial connects the update engine to a UART adapter: a raw
// pkg/term port for the byte stream and a line driver for nRST/nUPD.
package serial

import (
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/pkg/term"
	log "github.com/sirupsen/logrus"
)

const (
	DEFAULT_BAUD    = 1000000
	DEFAULT_TIMEOUT = 100 * time.Millisecond
)

// Port is a raw serial port with a bounded read timeout.
type Port struct {
	Name string
	t    *term.Term
	log  log.FieldLogger
}

func Open(name string, baud int, timeout time.Duration) (*Port, error) {
	if baud <= 0 {
		baud = DEFAULT_BAUD
	}
	if timeout <= 0 {
		timeout = DEFAULT_TIMEOUT
	}
	t, err := term.Open(name, term.Speed(baud), term.RawMode, term.ReadTimeout(timeout))
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", name)
	}
	p := &Port{
		Name: name,
		t:    t,
		log:  log.WithFields(log.Fields{"port": name, "baud": baud}),
	}
	p.log.Debug("port opened")
	return p, nil
}

func (p *Port) Write(b []byte) (int, error) {
	return p.t.Write(b)
}

// ReadN reads until n bytes arrived or a read timed out.
func (p *Port) ReadN(n int) ([]byte, error) {
	return readN(p.t, n)
}

func readN(r io.Reader, n int) ([]byte, error) {
	buf := make([]byte, n)
	got := 0
	for got < n {
		m, err := r.Read(buf[got:])
		got += m
		if err == io.EOF || (err == nil && m == 0) {
			// read timeout
			break
		}
		if err != nil {
			return buf[:got], err
		}
	}
	return buf[:got], nil
}

// ResetInput drops everything received but not yet read.
func (p *Port) ResetInput() error {
	n, err := p.t.Available()
	if err != nil {
		return err
	}
	if n == 0 {
		return nil
	}
	p.log.WithField("size", n).Debug("discarding input")
	_, err = io.ReadFull(p.t, make([]byte, n))
	return err
}

// ResetOutput discards pending output. The tty flush covers both
// directions, so unread input is discarded too.
func (p *Port) ResetOutput() error {
	return p.t.Flush()
}

// ModemLines returns a line driver on the DTR/RTS lines of the port.
func (p *Port) ModemLines() *ModemLines {
	return &ModemLines{m: p.t}
}

func (p *Port) Close() error {
	p.log.Debug("port closed")
	return p.t.Close()
}
