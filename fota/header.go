package fota

import (
	"encoding/binary"
	"fmt"
)

// VectorTable holds the image header: the first nine words of the ARM
// vector table, with the two reserved slots carrying the version and
// descriptor pointers.
type VectorTable struct {
	StackPtr          uint32
	ResetHandler      uint32
	NMIHandler        uint32
	HardFaultHandler  uint32
	MemManageHandler  uint32
	BusFaultHandler   uint32
	UsageFaultHandler uint32
	VersionPtr        uint32
	DescriptorPtr     uint32
}

func (h *VectorTable) FromWire(payload []byte) (err error) {
	if len(payload) < VECTOR_TABLE_SIZE {
		return ErrTruncated
	}
	w := func(i int) uint32 { return binary.LittleEndian.Uint32(payload[i*4:]) }
	h.StackPtr = w(0)
	h.ResetHandler = w(1)
	h.NMIHandler = w(2)
	h.HardFaultHandler = w(3)
	h.MemManageHandler = w(4)
	h.BusFaultHandler = w(5)
	h.UsageFaultHandler = w(6)
	h.VersionPtr = w(7)
	h.DescriptorPtr = w(8)
	return nil
}

func (h *VectorTable) ToWire() (payload []byte) {
	payload = make([]byte, VECTOR_TABLE_SIZE)
	for i, v := range []uint32{h.StackPtr, h.ResetHandler, h.NMIHandler, h.HardFaultHandler,
		h.MemManageHandler, h.BusFaultHandler, h.UsageFaultHandler, h.VersionPtr, h.DescriptorPtr} {
		binary.LittleEndian.PutUint32(payload[i*4:], v)
	}
	return payload
}

// ImageStart is the start address implied by the reset handler, which always
// resides in the first sector of an image.
func (h *VectorTable) ImageStart() uint32 {
	return sectorFloor(h.ResetHandler)
}

func (h *VectorTable) String() string {
	return fmt.Sprintf("SP %#08x Reset %#08x NMI %#08x HardFault %#08x MemManage %#08x BusFault %#08x UsageFault %#08x Version %#08x Descriptor %#08x",
		h.StackPtr, h.ResetHandler, h.NMIHandler, h.HardFaultHandler, h.MemManageHandler,
		h.BusFaultHandler, h.UsageFaultHandler, h.VersionPtr, h.DescriptorPtr)
}

type alignment struct {
	mod, rem uint32
}

var (
	alignThumb = alignment{2, 1} // code addresses carry the Thumb bit
	alignHalf  = alignment{2, 0}
	alignWord  = alignment{4, 0}
)

// checkBounds validates low <= addr < high and the alignment of addr.
func checkBounds(field string, low, addr, high uint32, align alignment) error {
	if addr%align.mod != align.rem {
		return invalid(field, addr, "misaligned")
	}
	if addr < low || addr >= high {
		return invalid(field, addr, fmt.Sprintf("outside [0x%08X, 0x%08X)", low, high))
	}
	return nil
}

// checkVectors runs the checks shared by build and flash time validation.
func checkVectors(h *VectorTable, start, end uint32) (err error) {
	if err = checkBounds("Stack pointer", RAM_START+RAM_RESERVED, h.StackPtr, RAM_START+RAM_SIZE, alignWord); err != nil {
		return err
	}
	if err = checkBounds("Reset vector", start+RESET_VECTOR_MIN_OFFSET, h.ResetHandler, start+RESET_VECTOR_MAX_OFFSET, alignThumb); err != nil {
		return err
	}
	faults := []struct {
		name string
		addr uint32
	}{
		{"NMI vector", h.NMIHandler},
		{"HardFault vector", h.HardFaultHandler},
		{"MemManage vector", h.MemManageHandler},
		{"BusFault vector", h.BusFaultHandler},
		{"UsageFault vector", h.UsageFaultHandler},
	}
	for _, f := range faults {
		if err = checkBounds(f.name, h.ResetHandler, f.addr, end, alignThumb); err != nil {
			return err
		}
	}
	return nil
}

// EvalHeader evaluates the image header found at offset (rounded up to the
// next sector boundary) and returns the image start address, the image size
// counted from that offset and the version record of the image.
//
// The size defaults to the remaining file length. A descriptor whose
// declared size is plausible overrides it (plus the trailing signature), so
// a combined FOTA file can be split into its sub-images.
func EvalHeader(img []byte, offset int) (start uint32, size int, ver VersionRecord, err error) {
	offset = sectorCeil(offset)
	if offset >= len(img) {
		return 0, 0, ver, invalid("Image offset", uint32(offset), "beyond end of file")
	}
	var h VectorTable
	if err = h.FromWire(img[offset:]); err != nil {
		return 0, 0, ver, invalid("Image header", uint32(offset), "truncated vector table")
	}

	start = h.ImageStart()
	size = len(img) - offset

	if h.ResetHandler < h.DescriptorPtr && h.DescriptorPtr < start+uint32(size) {
		dscrOffset := offset + int(h.DescriptorPtr-start)
		if dscrOffset+4 <= len(img) {
			declared := int(binary.LittleEndian.Uint32(img[dscrOffset:]))
			if declared >= MIN_DECLARED_SIZE && declared < size {
				size = declared + SIGNATURE_SIZE
			}
		}
	}

	end := uint64(start) + uint64(size)
	if end > uint64(FLASH_END) {
		return 0, 0, ver, invalid("Image size", uint32(size), "image too big")
	}
	if err = checkVectors(&h, start, uint32(end)); err != nil {
		return 0, 0, ver, err
	}

	if h.VersionPtr == 0 {
		return start, size, VersionRecord{ID: ID_UNKNOWN}, nil
	}
	if err = checkBounds("Version pointer", h.ResetHandler, h.VersionPtr, uint32(end), alignHalf); err != nil {
		return 0, 0, ver, err
	}
	verOffset := offset + int(h.VersionPtr-start)
	if verOffset >= len(img) {
		return 0, 0, ver, invalid("Version pointer", h.VersionPtr, "record beyond end of file")
	}
	if err = ver.FromWire(img[verOffset:]); err != nil {
		return 0, 0, ver, invalid("Version pointer", h.VersionPtr, "record beyond end of file")
	}
	return start, size, ver, nil
}

// Image is a firmware image prepared for download.
type Image struct {
	Start uint32
	Data  []byte

	// Versions lists the secondary (application) version ahead of the
	// primary one, matching how the device reports installed images.
	Versions []VersionRecord

	// ID is the component id of the primary image.
	ID [6]byte
}

func (i *Image) Size() int { return len(i.Data) }

func (i *Image) String() string {
	return fmt.Sprintf("Image start %#08x size %d: %s", i.Start, len(i.Data), FormatVersions(i.Versions))
}

// LoadImage validates an image file before it is pushed to the bootloader.
// Bootloader images and (combined) application images are accepted.
func LoadImage(data []byte) (img *Image, err error) {
	start, size, primary, err := EvalHeader(data, 0)
	if err != nil {
		return nil, err
	}
	if start != BOOT_BASE_ADR && start != APP_BASE_ADR {
		return nil, invalid("Image start address", start, "neither bootloader nor application base")
	}

	img = &Image{Start: start, ID: primary.ID}
	if size < len(data) {
		_, _, secondary, err := EvalHeader(data, size)
		if err != nil {
			return nil, err
		}
		img.Versions = []VersionRecord{secondary, primary}
	} else {
		img.Versions = []VersionRecord{primary}
	}

	img.Data = make([]byte, len(data), len(data)+8)
	copy(img.Data, data)
	img.Data = Pad(img.Data, 8)
	return img, nil
}
