package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	bodyMagic    = "CROWGPH"
	bodyVersion  = 0x01
	bodyHdrSize  = 9 // 7 magic + 1 version + 1 flags
	frameEnvSize = 9 // 1 type + 4 compressed_len + 4 uncompressed_len
)

// FrameType identifies the kind of frame.
type FrameType byte

const (
	FrameMeta  FrameType = 0x01
	FrameDict  FrameType = 0x02
	FrameEdges FrameType = 0x03
)

func (t FrameType) String() string {
	switch t {
	case FrameMeta:
		return "meta"
	case FrameDict:
		return "dict"
	case FrameEdges:
		return "edges"
	default:
		return fmt.Sprintf("frame(0x%02x)", byte(t))
	}
}

// FrameSlice describes a frame's location in the body.
type FrameSlice struct {
	Type            FrameType
	Offset          int // byte offset from start of body (includes envelope)
	CompressedLen   int
	UncompressedLen int
	PayloadOffset   int // Offset + frameEnvSize
}

// NewBody returns a graph blob header with no frames.
func NewBody() []byte {
	buf := make([]byte, bodyHdrSize)
	copy(buf[0:7], bodyMagic)
	buf[7] = bodyVersion
	buf[8] = 0x00 // flags: reserved
	return buf
}

// AppendFrame appends an encoded frame (envelope + compressed payload) to the body.
func AppendFrame(body, frame []byte) []byte {
	return append(body, frame...)
}

// WriteEnvelope writes a 9-byte frame envelope.
func WriteEnvelope(frameType FrameType, compressedLen, uncompressedLen int) []byte {
	env := make([]byte, frameEnvSize)
	env[0] = byte(frameType)
	binary.LittleEndian.PutUint32(env[1:5], uint32(compressedLen))
	binary.LittleEndian.PutUint32(env[5:9], uint32(uncompressedLen))
	return env
}

// ScanFrames validates the body header and returns metadata for each
// frame without decompressing.
func ScanFrames(body []byte) ([]FrameSlice, error) {
	if len(body) < bodyHdrSize {
		return nil, errors.New("body: data too short for header")
	}

	magic := string(body[0:7])
	if magic != bodyMagic {
		return nil, fmt.Errorf("body: bad magic %q, want %q", magic, bodyMagic)
	}
	if body[7] != bodyVersion {
		return nil, fmt.Errorf("body: unsupported version %d", body[7])
	}

	var frames []FrameSlice
	pos := bodyHdrSize

	for pos < len(body) {
		if pos+frameEnvSize > len(body) {
			return nil, fmt.Errorf("body: truncated frame envelope at offset %d", pos)
		}
		ft := FrameType(body[pos])
		compLen := int(binary.LittleEndian.Uint32(body[pos+1 : pos+5]))
		uncompLen := int(binary.LittleEndian.Uint32(body[pos+5 : pos+9]))

		payloadStart := pos + frameEnvSize
		if payloadStart+compLen > len(body) {
			return nil, fmt.Errorf("body: frame at offset %d truncated (need %d bytes, have %d)",
				pos, compLen, len(body)-payloadStart)
		}

		frames = append(frames, FrameSlice{
			Type:            ft,
			Offset:          pos,
			CompressedLen:   compLen,
			UncompressedLen: uncompLen,
			PayloadOffset:   payloadStart,
		})

		pos = payloadStart + compLen
	}

	return frames, nil
}

// ExtractFramePayload returns the compressed payload bytes for a frame slice.
func ExtractFramePayload(body []byte, fs FrameSlice) []byte {
	return body[fs.PayloadOffset : fs.PayloadOffset+fs.CompressedLen]
}
