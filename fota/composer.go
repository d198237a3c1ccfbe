package fota

import (
	"bytes"
	"fmt"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// SubImage is a validated FOTA stack or application image as produced by
// the linker, before id/config embedding and signing.
type SubImage struct {
	Data          []byte
	Start         uint32
	VersionOffset int
	Version       VersionRecord
	BuildID       [32]byte
}

func (s *SubImage) String() string {
	return fmt.Sprintf("Sub-image start %#08x size %d %s build %q", s.Start, len(s.Data), s.Version.String(),
		bytes.TrimRight(s.BuildID[:], "\x00"))
}

// CheckImage validates a sub-image for composition. In contrast to
// EvalHeader the start address must match exactly and the descriptor must
// declare the exact file length.
func CheckImage(img []byte, startAdr uint32, maxSize int) (sub *SubImage, err error) {
	var h VectorTable
	if err = h.FromWire(img); err != nil {
		return nil, invalid("Image header", 0, "truncated vector table")
	}

	start := h.ImageStart()
	size := len(img)
	if start != startAdr {
		return nil, invalid("Image start address", start, fmt.Sprintf("expected 0x%08X", startAdr))
	}
	if size > maxSize {
		return nil, invalid("Image size", uint32(size), fmt.Sprintf("image too big (%d/%d)", size, maxSize))
	}
	end := start + uint32(size)
	if err = checkVectors(&h, start, end); err != nil {
		return nil, err
	}
	if err = checkBounds("Version pointer", h.ResetHandler, h.VersionPtr, start+FLASH_SECTOR_SIZE, alignHalf); err != nil {
		return nil, err
	}
	if err = checkBounds("Descriptor pointer", h.ResetHandler, h.DescriptorPtr, start+FLASH_SECTOR_SIZE, alignWord); err != nil {
		return nil, err
	}

	sub = &SubImage{Data: img, Start: start, VersionOffset: int(h.VersionPtr - start)}
	if sub.VersionOffset >= size {
		return nil, invalid("Version pointer", h.VersionPtr, "record beyond end of file")
	}
	if err = sub.Version.FromWire(img[sub.VersionOffset:]); err != nil {
		return nil, invalid("Version pointer", h.VersionPtr, "record beyond end of file")
	}

	var d Descriptor
	dscrOffset := int(h.DescriptorPtr - start)
	if dscrOffset >= size {
		return nil, invalid("Descriptor pointer", h.DescriptorPtr, "record beyond end of file")
	}
	if err = d.FromWire(img[dscrOffset:]); err != nil {
		return nil, invalid("Descriptor pointer", h.DescriptorPtr, "record beyond end of file")
	}
	if int(d.Size) != size {
		return nil, invalid("Descriptor size", d.Size, fmt.Sprintf("wrong image size in descriptor (%d/%d)", d.Size, size))
	}
	sub.BuildID = d.BuildID
	return sub, nil
}

// EmbedDeviceID writes devID into the field following the version record.
// A nil devID leaves the image untouched.
func EmbedDeviceID(img []byte, verOffset int, devID *[16]byte) ([]byte, error) {
	if devID == nil {
		return img, nil
	}
	devOffset := verOffset + VERSION_RECORD_SIZE
	if devOffset+DEVICE_ID_SIZE > len(img) {
		return nil, invalid("Device ID", uint32(devOffset), "field beyond end of file")
	}
	res := append([]byte(nil), img...)
	copy(res[devOffset:], devID[:])
	return res, nil
}

// ConfigOverrides lists the configuration fields replaced in the FOTA stack.
// Nil fields keep the values shipped in the image.
type ConfigOverrides struct {
	VerifyingKey *[64]byte
	ServiceID    *[16]byte
	Name         []byte
}

// EmbedConfig rewrites the configuration block following the device id.
func EmbedConfig(img []byte, verOffset int, ov ConfigOverrides) ([]byte, error) {
	cfgOffset := verOffset + VERSION_RECORD_SIZE + DEVICE_ID_SIZE
	if cfgOffset+CONFIG_BLOCK_SIZE > len(img) {
		return nil, invalid("Configuration", uint32(cfgOffset), "block beyond end of file")
	}

	var cfg ConfigBlock
	if err := cfg.FromWire(img[cfgOffset:]); err != nil {
		return nil, err
	}
	if cfg.Length < CONFIG_BLOCK_SIZE {
		return nil, invalid("Configuration length", cfg.Length, fmt.Sprintf("wrong configuration length (%d/%d)", cfg.Length, CONFIG_BLOCK_SIZE))
	}
	if ov.VerifyingKey != nil {
		cfg.VerifyingKey = *ov.VerifyingKey
	}
	if ov.ServiceID != nil {
		cfg.ServiceID = *ov.ServiceID
	}
	if ov.Name != nil {
		if len(ov.Name) > CONFIG_NAME_MAX {
			return nil, errors.Errorf("advertised name too long (%d/%d)", len(ov.Name), CONFIG_NAME_MAX)
		}
		cfg.NameLength = uint16(len(ov.Name))
		cfg.Name = [CONFIG_NAME_MAX]byte{}
		copy(cfg.Name[:], ov.Name)
	}

	res := append([]byte(nil), img...)
	copy(res[cfgOffset:], cfg.ToWire())
	return res, nil
}

// ComposeOptions control Make. The zero value builds an unsigned image
// without device id and with the configuration shipped in the FOTA stack.
type ComposeOptions struct {
	DeviceID  *[16]byte
	ServiceID *[16]byte
	Name      []byte
	Signer    *Signer
	Logger    log.FieldLogger
}

// Make builds the combined FOTA image: the signed FOTA stack padded to the
// next sector, followed by the signed application. Nothing is returned
// unless both sub-images are valid and belong to the same build.
func Make(fotaImg, appImg []byte, opts ComposeOptions) (res []byte, err error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}
	signer := opts.Signer
	if signer == nil {
		signer = &Signer{}
	}
	if err = signer.Check(); err != nil {
		return nil, err
	}

	fota, err := CheckImage(fotaImg, FOTA_BASE_ADR, int(FOTA_MAX_SIZE))
	if err != nil {
		return nil, errors.Wrap(err, "FOTA image")
	}
	logger.WithField("size", len(fota.Data)).Debugf("FOTA stack %s", fota.Version.String())

	data, err := EmbedDeviceID(fota.Data, fota.VersionOffset, opts.DeviceID)
	if err != nil {
		return nil, errors.Wrap(err, "FOTA image")
	}
	ov := ConfigOverrides{ServiceID: opts.ServiceID, Name: opts.Name}
	if signer.IsSigning() {
		key := EncodeVerifyingKey(&signer.Key.PublicKey)
		ov.VerifyingKey = &key
	}
	if data, err = EmbedConfig(data, fota.VersionOffset, ov); err != nil {
		return nil, errors.Wrap(err, "FOTA image")
	}
	if data, err = signer.Sign(data); err != nil {
		return nil, err
	}
	data = Pad(data, int(FLASH_SECTOR_SIZE))
	fotaSize := len(data)

	appStart := FOTA_BASE_ADR + uint32(fotaSize)
	appMaxSize := int(FLASH_SIZE-BOOT_MAX_SIZE) - fotaSize
	app, err := CheckImage(appImg, appStart, appMaxSize)
	if err != nil {
		return nil, errors.Wrap(err, "application image")
	}
	if app.BuildID != fota.BuildID {
		return nil, ErrBuildIDMismatch
	}
	logger.WithFields(log.Fields{"start": fmt.Sprintf("%#08x", appStart), "size": len(app.Data)}).
		Debugf("application %s", app.Version.String())

	appData, err := EmbedDeviceID(app.Data, app.VersionOffset, opts.DeviceID)
	if err != nil {
		return nil, errors.Wrap(err, "application image")
	}
	// last region, no padding
	if appData, err = signer.Sign(appData); err != nil {
		return nil, err
	}

	res = make([]byte, 0, fotaSize+len(appData))
	res = append(res, data...)
	res = append(res, appData...)
	return res, nil
}
