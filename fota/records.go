package fota

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

/*
Records referenced by the vector table of an image:

	version record (at version pointer)
		guint8  id[6];
		guint16 version;        // major:4 minor:4 revision:8
	device id (directly behind the version record)
		guint8  dev_id[16];
	configuration (directly behind the device id, FOTA stack only)
		guint32 length;
		guint8  verifying_key[64];
		guint8  service_id[16];
		guint16 name_length;
		guint8  name[29];
	descriptor (at descriptor pointer)
		guint32 size;
		guint8  build_id[32];
*/
const (
	VERSION_RECORD_SIZE = 8
	DEVICE_ID_SIZE      = 16
	CONFIG_BLOCK_SIZE   = 4 + 64 + 16 + 2 + 29
	DESCRIPTOR_SIZE     = 4 + 32

	CONFIG_NAME_MAX = 29
)

var (
	ID_UNKNOWN = [6]byte{'?', '?', '?', '?', '?', '?'}
	ID_MISSING = [6]byte{}
)

type VersionRecord struct {
	ID      [6]byte
	Version uint16
}

// EncodeVersion packs major.minor.revision into the 4/4/8 bit version field.
func EncodeVersion(major, minor, revision uint8) uint16 {
	return uint16(major&0x0f)<<12 | uint16(minor&0x0f)<<8 | uint16(revision)
}

func (v VersionRecord) Major() uint8    { return uint8(v.Version>>12) & 0x0f }
func (v VersionRecord) Minor() uint8    { return uint8(v.Version>>8) & 0x0f }
func (v VersionRecord) Revision() uint8 { return uint8(v.Version) }

func (v VersionRecord) IsUnknown() bool { return v.ID == ID_UNKNOWN }
func (v VersionRecord) IsMissing() bool { return v.ID == ID_MISSING }

// VersionString returns the dotted version, or an empty string for unknown ids.
func (v VersionRecord) VersionString() string {
	if v.IsUnknown() {
		return ""
	}
	return fmt.Sprintf("%d.%d.%d", v.Major(), v.Minor(), v.Revision())
}

func (v VersionRecord) String() string {
	if v.IsUnknown() {
		return fmt.Sprintf("%-6s", string(v.ID[:]))
	}
	return fmt.Sprintf("%-6s ver=%s", string(bytes.TrimRight(v.ID[:], "\x00")), v.VersionString())
}

func (v *VersionRecord) FromWire(payload []byte) (err error) {
	if len(payload) < VERSION_RECORD_SIZE {
		return ErrTruncated
	}
	copy(v.ID[:], payload[:6])
	v.Version = binary.LittleEndian.Uint16(payload[6:8])
	return nil
}

func (v *VersionRecord) ToWire() (payload []byte) {
	payload = make([]byte, VERSION_RECORD_SIZE)
	copy(payload, v.ID[:])
	binary.LittleEndian.PutUint16(payload[6:], v.Version)
	return payload
}

// FormatVersions joins version records the way the update tool reports them,
// stopping at the first missing record.
func FormatVersions(list []VersionRecord) string {
	res := ""
	for i, v := range list {
		if v.IsMissing() {
			break
		}
		if i > 0 {
			res += " / "
		}
		res += v.String()
	}
	return res
}

type Descriptor struct {
	Size    uint32
	BuildID [32]byte
}

func (d *Descriptor) FromWire(payload []byte) (err error) {
	if len(payload) < DESCRIPTOR_SIZE {
		return ErrTruncated
	}
	d.Size = binary.LittleEndian.Uint32(payload[0:4])
	copy(d.BuildID[:], payload[4:DESCRIPTOR_SIZE])
	return nil
}

func (d *Descriptor) ToWire() (payload []byte) {
	payload = make([]byte, DESCRIPTOR_SIZE)
	binary.LittleEndian.PutUint32(payload, d.Size)
	copy(payload[4:], d.BuildID[:])
	return payload
}

func (d *Descriptor) String() string {
	return fmt.Sprintf("Descriptor size: %d, build id: %q", d.Size, bytes.TrimRight(d.BuildID[:], "\x00"))
}

type ConfigBlock struct {
	Length       uint32
	VerifyingKey [64]byte
	ServiceID    [16]byte
	NameLength   uint16
	Name         [CONFIG_NAME_MAX]byte
}

func (c *ConfigBlock) FromWire(payload []byte) (err error) {
	if len(payload) < CONFIG_BLOCK_SIZE {
		return ErrTruncated
	}
	c.Length = binary.LittleEndian.Uint32(payload[0:4])
	copy(c.VerifyingKey[:], payload[4:68])
	copy(c.ServiceID[:], payload[68:84])
	c.NameLength = binary.LittleEndian.Uint16(payload[84:86])
	copy(c.Name[:], payload[86:CONFIG_BLOCK_SIZE])
	return nil
}

func (c *ConfigBlock) ToWire() (payload []byte) {
	payload = make([]byte, CONFIG_BLOCK_SIZE)
	binary.LittleEndian.PutUint32(payload, c.Length)
	copy(payload[4:], c.VerifyingKey[:])
	copy(payload[68:], c.ServiceID[:])
	binary.LittleEndian.PutUint16(payload[84:], c.NameLength)
	copy(payload[86:], c.Name[:])
	return payload
}

// DeviceName returns the advertised name stored in the block.
func (c *ConfigBlock) DeviceName() string {
	n := int(c.NameLength)
	if n > CONFIG_NAME_MAX {
		n = CONFIG_NAME_MAX
	}
	return string(c.Name[:n])
}

func (c *ConfigBlock) String() string {
	return fmt.Sprintf("Config length: %d, service id: % x, name: %q", c.Length, c.ServiceID, c.DeviceName())
}
