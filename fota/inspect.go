package fota

import (
	"bytes"
	"crypto/ecdsa"
	"fmt"
)

// Section is one signed sub-image of an image file.
type Section struct {
	Offset  int
	Start   uint32
	Size    int
	Version VersionRecord

	// Config is the FOTA stack configuration, nil for images without one.
	Config *ConfigBlock

	Payload   []byte
	Signature []byte
}

// Signed reports whether the trailer is a real signature.
func (s *Section) Signed() bool {
	return !IsPseudoSignature(s.Payload, s.Signature)
}

// Verify checks the trailer against pub.
func (s *Section) Verify(pub *ecdsa.PublicKey) bool {
	return Verify(pub, s.Payload, s.Signature)
}

// VerifyingKey returns the key embedded in the configuration block, nil if
// there is none.
func (s *Section) VerifyingKey() *ecdsa.PublicKey {
	if s.Config == nil {
		return nil
	}
	k := s.Config.VerifyingKey
	if bytes.Equal(k[:], make([]byte, 64)) || bytes.Equal(k[:], bytesOf(0xff, 64)) {
		return nil
	}
	pub := DecodeVerifyingKey(k)
	if !pub.Curve.IsOnCurve(pub.X, pub.Y) {
		return nil
	}
	return pub
}

func (s *Section) String() string {
	return fmt.Sprintf("%#08x +%d: %s (%s)", s.Start, s.Size, s.Version, RegionOf(s.Start))
}

// maximum declared configuration length accepted as a configuration block
const configLengthMax = 256

// Sections splits an image file into its sub-images. Every sub-image is
// validated with EvalHeader.
func Sections(data []byte) (res []*Section, err error) {
	for off := 0; sectorCeil(off) < len(data); {
		off = sectorCeil(off)
		start, size, ver, err := EvalHeader(data, off)
		if err != nil {
			return nil, err
		}
		if size < SIGNATURE_SIZE || off+size > len(data) {
			return nil, invalid("Image size", uint32(size), "no room for signature")
		}
		s := &Section{
			Offset:    off,
			Start:     start,
			Size:      size,
			Version:   ver,
			Payload:   data[off : off+size-SIGNATURE_SIZE],
			Signature: data[off+size-SIGNATURE_SIZE : off+size],
		}
		s.Config = findConfig(data[off:off+size], start)
		res = append(res, s)
		off += size
	}
	return res, nil
}

func findConfig(img []byte, start uint32) *ConfigBlock {
	var h VectorTable
	if h.FromWire(img) != nil || h.VersionPtr == 0 {
		return nil
	}
	cfgOffset := int(h.VersionPtr-start) + VERSION_RECORD_SIZE + DEVICE_ID_SIZE
	if cfgOffset+CONFIG_BLOCK_SIZE > len(img) {
		return nil
	}
	var c ConfigBlock
	if c.FromWire(img[cfgOffset:]) != nil {
		return nil
	}
	if c.Length < CONFIG_BLOCK_SIZE || c.Length > configLengthMax || c.NameLength > CONFIG_NAME_MAX {
		return nil
	}
	return &c
}
