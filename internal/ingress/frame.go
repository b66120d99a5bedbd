// Package ingress implements the AudioSocket-style TLV framing the PBX speaks
// over its TCP connection to the bridge, and the accept loop that turns
// incoming connections into a stream of decoded [Frame] values.
//
// Wire format: `| 1 byte type | 2 bytes big-endian length | length bytes payload |`.
// There is no third-party library for this format in the reference corpus —
// it is vendor-specific to the PBX's AudioSocket implementation — so the
// codec is a small, deliberate `encoding/binary` leaf.
package ingress

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Type identifies the kind of an AudioSocket frame.
type Type byte

const (
	TypeHangup   Type = 0x00
	TypeUUID     Type = 0x01
	TypeDTMF     Type = 0x03
	TypeAudio8K  Type = 0x10
	TypeAudio16K Type = 0x12
	TypeAudio24K Type = 0x13
	TypeAudio48K Type = 0x16
	TypeError    Type = 0xFF
)

func (t Type) String() string {
	switch t {
	case TypeHangup:
		return "HANGUP"
	case TypeUUID:
		return "UUID"
	case TypeDTMF:
		return "DTMF"
	case TypeAudio8K:
		return "AUDIO_8K"
	case TypeAudio16K:
		return "AUDIO_16K"
	case TypeAudio24K:
		return "AUDIO_24K"
	case TypeAudio48K:
		return "AUDIO_48K"
	case TypeError:
		return "ERROR"
	default:
		return fmt.Sprintf("UNKNOWN(0x%02x)", byte(t))
	}
}

// maxFrameLength is one past the largest payload the wire format permits —
// the 16-bit length field can represent at most maxFrameLength-1 bytes.
// Frames at or above it are rejected as a [ErrProtocol].
const maxFrameLength = 64 * 1024

// audioFrameSize maps an audio frame [Type] to its fixed 20ms payload size in
// bytes. Non-audio types are absent from this map.
var audioFrameSize = map[Type]int{
	TypeAudio8K:  320,
	TypeAudio16K: 640,
	TypeAudio24K: 960,
	TypeAudio48K: 1920,
}

// SampleRate returns the PCM sample rate in Hz an audio frame type carries,
// and ok=false if t is not an audio type.
func (t Type) SampleRate() (rate int, ok bool) {
	switch t {
	case TypeAudio8K:
		return 8000, true
	case TypeAudio16K:
		return 16000, true
	case TypeAudio24K:
		return 24000, true
	case TypeAudio48K:
		return 48000, true
	default:
		return 0, false
	}
}

// IsAudio reports whether t carries a PCM16 audio payload.
func (t Type) IsAudio() bool {
	_, ok := audioFrameSize[t]
	return ok
}

// ErrProtocol is returned (wrapped with detail) whenever a frame violates the
// wire contract: oversized length, missing leading UUID frame, or an audio
// frame whose payload length does not match its sample-rate-derived 20ms
// size.
var ErrProtocol = errors.New("ingress: protocol error")

// Frame is a single decoded AudioSocket TLV unit.
type Frame struct {
	Type    Type
	Payload []byte
}

// Encode serialises f into the TLV wire format. It fails with [ErrProtocol]
// if the payload is too large for the 16-bit length field to represent.
func Encode(f Frame) ([]byte, error) {
	if len(f.Payload) >= maxFrameLength {
		return nil, fmt.Errorf("%w: payload length %d exceeds %d bytes", ErrProtocol, len(f.Payload), maxFrameLength-1)
	}
	buf := make([]byte, 3+len(f.Payload))
	buf[0] = byte(f.Type)
	binary.BigEndian.PutUint16(buf[1:3], uint16(len(f.Payload)))
	copy(buf[3:], f.Payload)
	return buf, nil
}

// WriteFrame encodes f and writes it to w in a single Write call, so the
// frame lands in one system write when the underlying writer is a raw
// [io.Writer] over a socket. It never splits a frame across two writes.
func WriteFrame(w io.Writer, f Frame) error {
	buf, err := Encode(f)
	if err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}

// Reader decodes a sequence of [Frame]s from an underlying byte stream,
// enforcing the AudioSocket protocol contract: the first frame read from a
// fresh connection must be a UUID frame, frame length must not exceed 64KiB,
// and audio frame payloads must match their declared sample rate's 20ms
// size.
type Reader struct {
	br      *bufio.Reader
	sawUUID bool
}

// NewReader wraps r with protocol validation. Use [ingress.Frame] values
// produced by [Reader.Read] to drive the call's ingress task.
func NewReader(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReaderSize(r, 4096)}
}

// Read decodes and returns the next frame, blocking until one is available.
// It returns io.EOF when the peer closes the connection cleanly between
// frames, or a wrapped [ErrProtocol] when the stream violates the wire
// contract.
func (r *Reader) Read() (Frame, error) {
	header := make([]byte, 3)
	if _, err := io.ReadFull(r.br, header); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Frame{}, fmt.Errorf("%w: connection closed mid-header", ErrProtocol)
		}
		return Frame{}, err
	}

	typ := Type(header[0])
	length := int(binary.BigEndian.Uint16(header[1:3]))
	if length > maxFrameLength {
		return Frame{}, fmt.Errorf("%w: frame length %d exceeds %d bytes", ErrProtocol, length, maxFrameLength)
	}

	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r.br, payload); err != nil {
			return Frame{}, fmt.Errorf("%w: short payload read: %v", ErrProtocol, err)
		}
	}

	if !r.sawUUID {
		if typ != TypeUUID {
			return Frame{}, fmt.Errorf("%w: first frame was %s, expected UUID", ErrProtocol, typ)
		}
		r.sawUUID = true
	}

	if size, ok := audioFrameSize[typ]; ok && length != size {
		rate, _ := typ.SampleRate()
		return Frame{}, fmt.Errorf("%w: %s frame payload is %d bytes, expected %d bytes (20ms @ %dHz)",
			ErrProtocol, typ, length, size, rate)
	}

	return Frame{Type: typ, Payload: payload}, nil
}
