package wire

import (
	"fmt"
	"unsafe"
)

// Version is the current protocol version written into every header. A
// reader must accept any version <= Version.
const Version byte = 2

// versioned field thresholds, used by the encoder/decoder to decide
// whether to emit/expect an optional field. See MethodInferenceInfo.
const versionInferenceInfo = 2

const (
	magic0 = 'J'
	magic1 = 'L'
)

// endianness flag bits.
const (
	flagBigEndian byte = 1 << 0
	flagWordSize8 byte = 1 << 2
)

// Header is the eight-byte record every top-level stream starts with.
type Header struct {
	Version   byte
	BigEndian bool
	WordSize8 bool
}

// HostHeader returns the header this process would write: current version,
// native byte order, native pointer width.
func HostHeader() Header {
	return Header{
		Version:   Version,
		BigEndian: isBigEndianHost(),
		WordSize8: unsafe.Sizeof(uintptr(0)) == 8,
	}
}

func isBigEndianHost() bool {
	var x uint16 = 1
	b := (*[2]byte)(unsafe.Pointer(&x))
	return b[0] == 0
}

// Encode writes the 8-byte header representation.
func (h Header) Encode() [8]byte {
	var flags byte
	if h.BigEndian {
		flags |= flagBigEndian
	}
	if h.WordSize8 {
		flags |= flagWordSize8
	}
	var buf [8]byte
	buf[0] = byte(TagHeader)
	buf[1] = magic0
	buf[2] = magic1
	buf[3] = h.Version
	buf[4] = flags
	// buf[5..7] reserved, zero.
	return buf
}

// DecodeHeader validates and parses an 8-byte header record.
func DecodeHeader(buf [8]byte) (Header, error) {
	if buf[0] != byte(TagHeader) {
		return Header{}, &HeaderError{Reason: fmt.Sprintf("bad tag byte %#x, want %#x", buf[0], byte(TagHeader))}
	}
	if buf[1] != magic0 || buf[2] != magic1 {
		return Header{}, &HeaderError{Reason: fmt.Sprintf("bad magic %q%q, want %q%q", buf[1], buf[2], magic0, magic1)}
	}
	peerVersion := buf[3]
	if peerVersion > Version {
		return Header{}, &HeaderError{Reason: fmt.Sprintf("peer version %d newer than reader version %d", peerVersion, Version)}
	}
	flags := buf[4]
	h := Header{
		Version:   peerVersion,
		BigEndian: flags&flagBigEndian != 0,
		WordSize8: flags&flagWordSize8 != 0,
	}
	if h.BigEndian != isBigEndianHost() {
		return Header{}, &HeaderError{Reason: "stream endianness does not match host endianness"}
	}
	return h, nil
}
