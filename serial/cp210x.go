package serial

import (
	"fmt"

	"github.com/google/gousb"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	CP210X_VID gousb.ID = 0x10c4
)

var CP210X_PIDS = []gousb.ID{0xea60, 0xea70, 0xea71}

var ErrNoAdapter = errors.New("no CP210x adapter found")

/*
CP210x vendor specific requests (bRequest 0xFF):
	wValue 0x370B	get part number, 1 byte in
	wValue 0x00C2	read GPIO latch, 1 byte in
	wValue 0x37E1	write GPIO latch, wIndex = latch<<8 | mask
*/
const (
	CP210X_REQTYPE_DEVICE_TO_HOST uint8 = 0xc0
	CP210X_REQTYPE_HOST_TO_DEVICE uint8 = 0x40
	CP210X_VENDOR_SPECIFIC        uint8 = 0xff

	CP210X_GET_PARTNUM  uint16 = 0x370b
	CP210X_READ_LATCH   uint16 = 0x00c2
	CP210X_WRITE_LATCH  uint16 = 0x37e1
	CP210X_LATCH_MIN_PN byte   = 3
)

type controller interface {
	Control(rType, request uint8, val, idx uint16, data []byte) (int, error)
}

// CP210x drives nRST/nUPD through the GPIO latch of a Silicon Labs USB to
// UART bridge. Parts without GPIO latch silently ignore all requests.
type CP210x struct {
	ctx     *gousb.Context
	dev     *gousb.Device
	ctrl    controller
	PartNum byte
	log     log.FieldLogger
}

// OpenCP210x opens the adapter with the given USB serial number, or the
// first adapter found if serial is empty.
func OpenCP210x(serial string) (res *CP210x, err error) {
	res = &CP210x{ctx: gousb.NewContext()}

	var found bool
	devs, err := res.ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		if desc.Vendor != CP210X_VID {
			return false
		}
		for _, pid := range CP210X_PIDS {
			if desc.Product == pid {
				return true
			}
		}
		return false
	})
	for _, dev := range devs {
		if found {
			dev.Close()
			continue
		}
		if serial != "" {
			if sn, _ := dev.SerialNumber(); sn != serial {
				dev.Close()
				continue
			}
		}
		found = true
		res.dev = dev
	}
	if res.dev == nil {
		res.ctx.Close()
		if err != nil {
			return nil, errors.Wrap(err, "enumerate USB devices")
		}
		return nil, ErrNoAdapter
	}

	res.ctrl = res.dev
	res.log = log.WithField("adapter", res.dev.String())
	if err = res.readPartNumber(); err != nil {
		res.Close()
		return nil, err
	}
	res.log.WithField("part", res.PartNum).Debug("CP210x adapter opened")
	return res, nil
}

func (c *CP210x) readPartNumber() error {
	buf := make([]byte, 1)
	if _, err := c.ctrl.Control(CP210X_REQTYPE_DEVICE_TO_HOST, CP210X_VENDOR_SPECIFIC, CP210X_GET_PARTNUM, 0, buf); err != nil {
		return errors.Wrap(err, "get part number")
	}
	c.PartNum = buf[0]
	return nil
}

// HasLatch reports whether the part provides a GPIO latch.
func (c *CP210x) HasLatch() bool {
	return c.PartNum%10 >= CP210X_LATCH_MIN_PN
}

func (c *CP210x) WriteLatch(mask, value uint16) error {
	if !c.HasLatch() {
		return nil
	}
	idx := (value&0xff)<<8 | mask&0xff
	if _, err := c.ctrl.Control(CP210X_REQTYPE_HOST_TO_DEVICE, CP210X_VENDOR_SPECIFIC, CP210X_WRITE_LATCH, idx, nil); err != nil {
		return errors.Wrap(err, "write latch")
	}
	return nil
}

func (c *CP210x) ReadLatch() (uint16, error) {
	if !c.HasLatch() {
		return 0, nil
	}
	buf := make([]byte, 1)
	if _, err := c.ctrl.Control(CP210X_REQTYPE_DEVICE_TO_HOST, CP210X_VENDOR_SPECIFIC, CP210X_READ_LATCH, 0, buf); err != nil {
		return 0, errors.Wrap(err, "read latch")
	}
	return uint16(buf[0]), nil
}

func (c *CP210x) String() string {
	if c.dev == nil {
		return fmt.Sprintf("CP210x part %d", c.PartNum)
	}
	return fmt.Sprintf("CP210x part %d (%s)", c.PartNum, c.dev)
}

func (c *CP210x) Close() {
	if c.dev != nil {
		c.dev.Close()
	}
	if c.ctx != nil {
		c.ctx.Close()
	}
}
