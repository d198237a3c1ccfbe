package updater

import (
	"bytes"
	"reflect"
	"testing"

	"github.com/pkg/errors"

	"github.com/mame82/fotaflash/fota"
)

func TestUpdate(t *testing.T) {
	dev := newSimDevice()
	img := testImage(t, fota.APP_BASE_ADR, "APP001", 6144)
	s := newTestSession(dev)

	res, err := s.Update(img, false)
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if res.Attempts != 1 || res.Recoveries != 0 {
		t.Errorf("result = %v", res)
	}
	if !bytes.Equal(dev.flashed, img.Data) || dev.flashedAt != fota.APP_BASE_ADR {
		t.Errorf("flashed %d bytes at %#x", len(dev.flashed), dev.flashedAt)
	}
	want := []CommandType{CMD_HELLO, CMD_PROG, CMD_RESTART}
	if got := dev.commandTypes(); !reflect.DeepEqual(got, want) {
		t.Errorf("commands = %v, want %v", got, want)
	}
	boot := []latchWrite{
		{LINE_NRST | LINE_NUPD, RESET_BOOT},
		{LINE_NRST, LINE_NRST},
		{LINE_NUPD, LINE_NUPD},
	}
	if !reflect.DeepEqual(dev.latches, boot) {
		t.Errorf("latches = %v, want %v", dev.latches, boot)
	}
	if s.State() != STATE_APP_RESET || !dev.restarted {
		t.Errorf("State() = %v, restarted = %v", s.State(), dev.restarted)
	}
}

func TestUpdateRecoversFromBadFlashAddress(t *testing.T) {
	dev := newSimDevice()
	dev.progFailures = []ResponseCode{BAD_FLASH_ADDRESS}
	img := testImage(t, fota.APP_BASE_ADR, "APP001", 4096)
	s := newTestSession(dev)

	res, err := s.Update(img, false)
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if res.Recoveries != 1 {
		t.Errorf("Recoveries = %d, want 1", res.Recoveries)
	}
	if res.Attempts != 2 {
		t.Errorf("Attempts = %d, want 2", res.Attempts)
	}
	if !bytes.Equal(dev.flashed, img.Data) {
		t.Error("flashed data differs from image")
	}
	want := []CommandType{CMD_HELLO, CMD_PROG, CMD_HELLO, CMD_PROG, CMD_RESTART}
	if got := dev.commandTypes(); !reflect.DeepEqual(got, want) {
		t.Errorf("commands = %v, want %v", got, want)
	}
	if dev.outputResets != 1 {
		t.Errorf("output resets = %d", dev.outputResets)
	}
}

func TestUpdateRecoversFromTimeout(t *testing.T) {
	dev := newSimDevice()
	dev.silentHellos = 2
	img := testImage(t, fota.APP_BASE_ADR, "APP001", 2048)
	s := newTestSession(dev)

	res, err := s.Update(img, false)
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if res.Attempts != 3 || res.Recoveries != 2 {
		t.Errorf("result = %v", res)
	}
}

func TestUpdateRetryBudget(t *testing.T) {
	tests := []struct {
		name     string
		retries  int
		attempts int
	}{
		{"default", -1, 3},
		{"no retries", 0, 1},
		{"four retries", 4, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := newSimDevice()
			for i := 0; i < 10; i++ {
				dev.progFailures = append(dev.progFailures, PROG_FLASH_FAILED)
			}
			img := testImage(t, fota.APP_BASE_ADR, "APP001", 2048)
			var opts []Option
			if tt.retries >= 0 {
				opts = append(opts, WithRetries(tt.retries))
			}
			s := newTestSession(dev, opts...)

			res, err := s.Update(img, false)
			if err == nil {
				t.Fatalf("Update() = %v, want error", res)
			}
			var pe *ProtocolError
			if !errors.As(err, &pe) || pe.Code != PROG_FLASH_FAILED {
				t.Errorf("Update() error = %v", err)
			}
			progs := 0
			for _, c := range dev.commands {
				if c.Type == CMD_PROG {
					progs++
				}
			}
			if progs != tt.attempts {
				t.Errorf("PROG commands = %d, want %d", progs, tt.attempts)
			}
			if s.Recoveries() != tt.attempts-1 {
				t.Errorf("Recoveries() = %d, want %d", s.Recoveries(), tt.attempts-1)
			}
			if s.State() != STATE_FAILED {
				t.Errorf("State() = %v", s.State())
			}
		})
	}
}

func TestUpdateTransportErrorIsFatal(t *testing.T) {
	dev := newSimDevice()
	dev.writeErr = errWire
	img := testImage(t, fota.APP_BASE_ADR, "APP001", 2048)
	s := newTestSession(dev)

	_, err := s.Update(img, false)
	if errors.Cause(err) != errWire {
		t.Fatalf("Update() error = %v, want %v", err, errWire)
	}
	if IsProtocolError(err) {
		t.Error("transport error reported as protocol error")
	}
	if s.Recoveries() != 0 {
		t.Errorf("Recoveries() = %d", s.Recoveries())
	}
}

func TestUpdateOverwriteGate(t *testing.T) {
	tests := []struct {
		name      string
		id        string
		force     bool
		confirmer bool
		answer    bool
		asked     int
		allowed   bool
	}{
		{name: "no force", id: "BOOT01", force: false},
		{name: "bootloader build", id: "BOOT01", force: true, allowed: true},
		{name: "no confirmer", id: "FOTA01", force: true},
		{name: "declined", id: "FOTA01", force: true, confirmer: true, answer: false, asked: 1},
		{name: "confirmed", id: "FOTA01", force: true, confirmer: true, answer: true, asked: 1, allowed: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := newSimDevice()
			img := testImage(t, fota.BOOT_BASE_ADR, tt.id, 2048)
			asked := 0
			var opts []Option
			if tt.confirmer {
				opts = append(opts, WithConfirmer(func(string) bool {
					asked++
					return tt.answer
				}))
			}
			s := newTestSession(dev, opts...)

			_, err := s.Update(img, tt.force)
			if asked != tt.asked {
				t.Errorf("confirmer asked %d times, want %d", asked, tt.asked)
			}
			if tt.allowed {
				if err != nil {
					t.Fatalf("Update() error = %v", err)
				}
				if dev.flashedAt != fota.BOOT_BASE_ADR {
					t.Errorf("flashed at %#x", dev.flashedAt)
				}
				return
			}
			if !IsConfirmationRequired(err) {
				t.Fatalf("Update() error = %v, want confirmation required", err)
			}
			if len(dev.commands) != 0 || len(dev.latches) != 0 || dev.inputResets != 0 {
				t.Errorf("device touched: commands %v, latches %v", dev.commandTypes(), dev.latches)
			}
			if s.State() != STATE_IDLE {
				t.Errorf("State() = %v", s.State())
			}
		})
	}
}

func TestInfo(t *testing.T) {
	dev := newSimDevice()
	dev.hello.Application = record("APP001", 1, 0, 3)
	dev.noRestart = true
	s := newTestSession(dev)

	hello, err := s.Info()
	if err != nil {
		t.Fatalf("Info() error = %v", err)
	}
	if hello.Application != dev.hello.Application {
		t.Errorf("Application = %v", hello.Application)
	}
	want := []CommandType{CMD_HELLO, CMD_RESTART}
	if got := dev.commandTypes(); !reflect.DeepEqual(got, want) {
		t.Errorf("commands = %v, want %v", got, want)
	}
	// boot reset followed by the application reset fallback
	if len(dev.latches) != 6 || dev.latches[3] != (latchWrite{LINE_NRST | LINE_NUPD, RESET_APP}) {
		t.Errorf("latches = %v", dev.latches)
	}
}
