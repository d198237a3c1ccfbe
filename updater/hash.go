package updater

import "hash/crc32"

// ImageHash is the 32 bit hash carried in the PROG command. The bootloader
// checks it over the complete download, independent of the per frame FCS.
// Its nibble table CRC is the reflected IEEE CRC-32.
func ImageHash(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}
