// Package reparse decodes NTFS reparse point data and resolves link targets.
package reparse

import (
	"encoding/binary"
	"unicode/utf16"

	"dirmover/internal/errs"
)

const (
	TagMountPoint uint32 = 0xA0000003
	TagSymlink    uint32 = 0xA000000C

	// MaxBufferSize is MAXIMUM_REPARSE_DATA_BUFFER_SIZE.
	MaxBufferSize = 16 * 1024

	HeaderSize = 16

	// symlink buffers carry a Flags field between the header and the path buffer.
	symlinkFlagsSize = 4

	// SymlinkFlagRelative marks a symlink whose substitute name is relative.
	SymlinkFlagRelative uint32 = 1
)

// Header is the fixed part of REPARSE_DATA_BUFFER shared by symlinks and mount points.
type Header struct {
	Tag                  uint32
	DataLength           uint16
	Reserved             uint16
	SubstituteNameOffset uint16
	SubstituteNameLength uint16
	PrintNameOffset      uint16
	PrintNameLength      uint16
}

// ParseHeader decodes the little-endian fixed header.
func ParseHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, errs.Newf(errs.KindIO, "", "reparse buffer too short: %d bytes", len(buf))
	}
	le := binary.LittleEndian
	return Header{
		Tag:                  le.Uint32(buf[0:4]),
		DataLength:           le.Uint16(buf[4:6]),
		Reserved:             le.Uint16(buf[6:8]),
		SubstituteNameOffset: le.Uint16(buf[8:10]),
		SubstituteNameLength: le.Uint16(buf[10:12]),
		PrintNameOffset:      le.Uint16(buf[12:14]),
		PrintNameLength:      le.Uint16(buf[14:16]),
	}, nil
}

// IsLinkTag reports whether tag is one Parse decodes.
func IsLinkTag(tag uint32) bool {
	return tag == TagSymlink || tag == TagMountPoint
}

// Parse returns the print name stored in a symlink or mount point buffer.
func Parse(buf []byte) (string, error) {
	h, err := ParseHeader(buf)
	if err != nil {
		return "", err
	}

	pathStart := HeaderSize
	switch h.Tag {
	case TagSymlink:
		pathStart += symlinkFlagsSize
	case TagMountPoint:
	default:
		return "", errs.Newf(errs.KindUnsupportedReparseTag, "", "unsupported reparse tag 0x%08X", h.Tag)
	}

	// offsets count bytes into the path buffer, not into the print name region
	start := pathStart + int(h.PrintNameOffset)
	end := start + int(h.PrintNameLength)
	if end > len(buf) || h.PrintNameLength%2 != 0 {
		return "", errs.Newf(errs.KindIO, "",
			"print name [%d:%d] outside reparse buffer of %d bytes", start, end, len(buf))
	}
	return decodeUTF16(buf[start:end]), nil
}

// Flags returns the symlink flags field. Mount points have none.
func Flags(buf []byte) (uint32, bool) {
	h, err := ParseHeader(buf)
	if err != nil || h.Tag != TagSymlink || len(buf) < HeaderSize+symlinkFlagsSize {
		return 0, false
	}
	return binary.LittleEndian.Uint32(buf[HeaderSize : HeaderSize+symlinkFlagsSize]), true
}

// Build encodes a buffer with the given names. Substitute name comes first
// in the path buffer, followed by the print name.
func Build(tag uint32, flags uint32, substituteName, printName string) []byte {
	sub := encodeUTF16(substituteName)
	prn := encodeUTF16(printName)

	pathStart := HeaderSize
	if tag == TagSymlink {
		pathStart += symlinkFlagsSize
	}
	buf := make([]byte, pathStart+len(sub)+len(prn))
	le := binary.LittleEndian
	le.PutUint32(buf[0:4], tag)
	le.PutUint16(buf[4:6], uint16(len(buf)-8))
	le.PutUint16(buf[8:10], 0)
	le.PutUint16(buf[10:12], uint16(len(sub)))
	le.PutUint16(buf[12:14], uint16(len(sub)))
	le.PutUint16(buf[14:16], uint16(len(prn)))
	if tag == TagSymlink {
		le.PutUint32(buf[HeaderSize:HeaderSize+symlinkFlagsSize], flags)
	}
	copy(buf[pathStart:], sub)
	copy(buf[pathStart+len(sub):], prn)
	return buf
}

func decodeUTF16(b []byte) string {
	u := make([]uint16, len(b)/2)
	for i := range u {
		u[i] = binary.LittleEndian.Uint16(b[2*i:])
	}
	return string(utf16.Decode(u))
}

func encodeUTF16(s string) []byte {
	u := utf16.Encode([]rune(s))
	b := make([]byte, 2*len(u))
	for i, v := range u {
		binary.LittleEndian.PutUint16(b[2*i:], v)
	}
	return b
}
