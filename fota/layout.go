package fota

// Flash and RAM layout of the target.
const (
	FLASH_START       uint32 = 0x00100000
	FLASH_SIZE        uint32 = 380 * 1024
	FLASH_END         uint32 = FLASH_START + FLASH_SIZE
	FLASH_SECTOR_SIZE uint32 = 2 * 1024

	RAM_START    uint32 = 0x20000000
	RAM_SIZE     uint32 = 88 * 1024
	RAM_RESERVED uint32 = 1024 // lowest KiB of RAM is never a valid stack top

	BOOT_BASE_ADR uint32 = FLASH_START
	BOOT_MAX_SIZE uint32 = 8 * 1024

	APP_BASE_ADR uint32 = BOOT_BASE_ADR + BOOT_MAX_SIZE
	APP_MAX_SIZE uint32 = FLASH_SIZE - BOOT_MAX_SIZE

	// The FOTA stack occupies at most half of the non-bootloader flash, the
	// application follows it directly.
	FOTA_BASE_ADR uint32 = APP_BASE_ADR
	FOTA_MAX_SIZE uint32 = (FLASH_SIZE - BOOT_MAX_SIZE) / 2
)

// Image format sizes.
const (
	VECTOR_TABLE_WORDS = 9
	VECTOR_TABLE_SIZE  = VECTOR_TABLE_WORDS * 4

	// reset handler must point behind the vector table entries and into the
	// area covered by the interrupt vectors of the first sector
	RESET_VECTOR_MIN_OFFSET = 8 * 4
	RESET_VECTOR_MAX_OFFSET = 90 * 4

	SIGNATURE_SIZE = 64

	// descriptor sizes below this are ignored by the flash-time loader
	MIN_DECLARED_SIZE = 1024
)

// Region identifies one of the three flash regions.
type Region int

const (
	REGION_NONE Region = iota
	REGION_BOOTLOADER
	REGION_APPLICATION
)

func (r Region) String() string {
	switch r {
	case REGION_BOOTLOADER:
		return "bootloader"
	case REGION_APPLICATION:
		return "application"
	}
	return "outside flash"
}

// RegionOf returns the flash region containing addr.
func RegionOf(addr uint32) Region {
	switch {
	case addr >= BOOT_BASE_ADR && addr < BOOT_BASE_ADR+BOOT_MAX_SIZE:
		return REGION_BOOTLOADER
	case addr >= APP_BASE_ADR && addr < FLASH_END:
		return REGION_APPLICATION
	}
	return REGION_NONE
}

// sectorFloor rounds addr down to the enclosing flash sector.
func sectorFloor(addr uint32) uint32 {
	return addr - addr%FLASH_SECTOR_SIZE
}

// sectorCeil rounds n up to the next flash sector boundary.
func sectorCeil(n int) int {
	s := int(FLASH_SECTOR_SIZE)
	return n + (s-n%s)%s
}
