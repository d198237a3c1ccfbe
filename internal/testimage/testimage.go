// Package testimage builds small vector-table images for tests.
package testimage

import "encoding/binary"

// Offsets of the generated records, relative to the image start.
const (
	ResetOffset      = 0x41
	HandlerOffset    = 0x43
	VersionOffset    = 0x100
	DeviceIDOffset   = VersionOffset + 8
	ConfigOffset     = DeviceIDOffset + 16
	DescriptorOffset = 0x200

	StackPtr = 0x20010000

	ConfigLength = 4 + 64 + 16 + 2 + 29
	DefaultName  = "ON FOTA RSL10"
)

// Params describes an image to generate.
type Params struct {
	Start   uint32
	Size    int
	ID      string // component id, up to 6 characters
	Version uint16
	BuildID string

	// DeclaredSize overrides the size stored in the descriptor (0: Size).
	DeclaredSize int

	// WithConfig adds a FOTA configuration block behind the device id.
	WithConfig bool
	ServiceID  [16]byte

	// NoVersion leaves the version pointer zero.
	NoVersion bool
}

// Build returns a zero filled image of s.Size bytes with a valid header.
func Build(s Params) []byte {
	img := make([]byte, s.Size)
	put := func(off int, v uint32) { binary.LittleEndian.PutUint32(img[off:], v) }

	put(0, StackPtr)
	put(4, s.Start+ResetOffset)
	for i := 2; i < 7; i++ {
		put(i*4, s.Start+HandlerOffset)
	}
	if !s.NoVersion {
		put(7*4, s.Start+VersionOffset)
	}
	put(8*4, s.Start+DescriptorOffset)

	if !s.NoVersion {
		copy(img[VersionOffset:VersionOffset+6], s.ID)
		binary.LittleEndian.PutUint16(img[VersionOffset+6:], s.Version)
	}

	if s.WithConfig {
		put(ConfigOffset, ConfigLength)
		copy(img[ConfigOffset+68:], s.ServiceID[:])
		binary.LittleEndian.PutUint16(img[ConfigOffset+84:], uint16(len(DefaultName)))
		copy(img[ConfigOffset+86:], DefaultName)
	}

	declared := s.DeclaredSize
	if declared == 0 {
		declared = s.Size
	}
	put(DescriptorOffset, uint32(declared))
	copy(img[DescriptorOffset+4:DescriptorOffset+36], s.BuildID)
	return img
}

// SetWord overwrites the vector table entry at index i.
func SetWord(img []byte, i int, v uint32) []byte {
	res := append([]byte(nil), img...)
	binary.LittleEndian.PutUint32(res[i*4:], v)
	return res
}
