package updater

import (
	"bytes"
	"fmt"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/mame82/fotaflash/fota"
)

// Images whose component id starts with this marker are bootloader builds
// and may replace the bootloader without interactive confirmation.
var BOOTLOADER_ID_MARKER = []byte("BOOT")

type UpdateResult struct {
	Attempts   int
	Recoveries int

	// Rate is the PROG transfer rate of the successful attempt in bytes/s.
	Rate float64

	Hello *HelloResponse
}

func (r *UpdateResult) String() string {
	return fmt.Sprintf("%d attempt(s), %d recovery(ies), %.0f bytes/s", r.Attempts, r.Recoveries, r.Rate)
}

// CheckOverwrite enforces the bootloader overwrite gate: images below the
// application region need force, and confirm unless they are bootloader
// builds. It never touches the device.
func CheckOverwrite(img *fota.Image, force bool, confirm Confirmer) error {
	if img.Start >= fota.APP_BASE_ADR {
		return nil
	}
	if !force {
		return &ConfirmationRequiredError{Start: img.Start, Reason: "force flag not set"}
	}
	if bytes.HasPrefix(img.ID[:], BOOTLOADER_ID_MARKER) {
		return nil
	}
	if confirm == nil {
		return &ConfirmationRequiredError{Start: img.Start, Reason: "image is not a bootloader build and confirmation is not possible"}
	}
	if !confirm("Do you really want to overwrite the Bootloader?") {
		return &ConfirmationRequiredError{Start: img.Start, Reason: ErrAborted.Error()}
	}
	return nil
}

// Update flashes img. Every attempt runs HELLO, PROG and RESTART from
// scratch; protocol errors trigger a recovery pulse and a new attempt until
// the retry budget is exhausted.
func (s *Session) Update(img *fota.Image, force bool) (res *UpdateResult, err error) {
	if err = CheckOverwrite(img, force, s.cfg.Confirmer); err != nil {
		return nil, err
	}

	logger := s.log.WithFields(log.Fields{"addr": fmt.Sprintf("%#08x", img.Start), "size": img.Size()})
	logger.Info("updating device")

	if err = s.ResetToBootloader(); err != nil {
		s.setState(STATE_FAILED)
		return nil, err
	}

	firstRecovery := s.recoveries
	res = &UpdateResult{}
	for attempt := 1; ; attempt++ {
		res.Attempts = attempt
		err = s.attempt(img, res)
		if err == nil {
			res.Recoveries = s.recoveries - firstRecovery
			logger.WithField("attempt", attempt).Info("update done")
			return res, nil
		}
		if !IsProtocolError(err) {
			s.setState(STATE_FAILED)
			return nil, err
		}
		if attempt > s.cfg.Retries {
			s.setState(STATE_FAILED)
			return nil, errors.Wrap(err, "update not possible")
		}
		logger.WithField("attempt", attempt).WithError(err).Warn("update failed, trying again")
		if err = s.Recover(); err != nil {
			s.setState(STATE_FAILED)
			return nil, err
		}
	}
}

func (s *Session) attempt(img *fota.Image, res *UpdateResult) (err error) {
	hello, err := s.Hello()
	if err != nil {
		return err
	}
	res.Hello = hello

	start := time.Now()
	if err = s.Prog(img.Start, img.Data); err != nil {
		return err
	}
	if elapsed := time.Since(start).Seconds(); elapsed > 0 {
		res.Rate = float64(len(img.Data)) / elapsed
	}
	return s.Restart()
}

// Info reports the installed versions and restarts the application.
func (s *Session) Info() (hello *HelloResponse, err error) {
	if err = s.ResetToBootloader(); err != nil {
		return nil, err
	}
	if hello, err = s.Hello(); err != nil {
		s.setState(STATE_FAILED)
		return nil, err
	}
	if err = s.Restart(); err != nil {
		s.setState(STATE_FAILED)
		return nil, err
	}
	return hello, nil
}
