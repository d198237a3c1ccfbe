package serial

import (
	"github.com/mame82/fotaflash/updater"
)

type modem interface {
	SetDTR(v bool) error
	SetRTS(v bool) error
	DTR() (bool, error)
	RTS() (bool, error)
}

// ModemLines drives nRST through DTR and nUPD through RTS. The lines are
// active low, an asserted modem line pulls its pin low.
type ModemLines struct {
	m modem
}

func (l *ModemLines) WriteLatch(mask, value uint16) (err error) {
	if mask&updater.LINE_NRST != 0 {
		if err = l.m.SetDTR(value&updater.LINE_NRST == 0); err != nil {
			return err
		}
	}
	if mask&updater.LINE_NUPD != 0 {
		if err = l.m.SetRTS(value&updater.LINE_NUPD == 0); err != nil {
			return err
		}
	}
	return nil
}

func (l *ModemLines) ReadLatch() (latch uint16, err error) {
	dtr, err := l.m.DTR()
	if err != nil {
		return 0, err
	}
	rts, err := l.m.RTS()
	if err != nil {
		return 0, err
	}
	if !dtr {
		latch |= updater.LINE_NRST
	}
	if !rts {
		latch |= updater.LINE_NUPD
	}
	return latch, nil
}
