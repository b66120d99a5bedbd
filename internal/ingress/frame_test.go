package ingress_test

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/voxbridge/realtime-bridge/internal/ingress"
)

func readOne(t *testing.T, data []byte) (ingress.Frame, error) {
	t.Helper()
	r := ingress.NewReader(bytes.NewReader(data))
	return r.Read()
}

func TestFrameRoundTrip(t *testing.T) {
	cases := []ingress.Frame{
		{Type: ingress.TypeUUID, Payload: []byte("a1b2c3d4-0000-0000-0000-000000000000")},
		{Type: ingress.TypeAudio24K, Payload: make([]byte, 960)},
		{Type: ingress.TypeDTMF, Payload: []byte("5")},
		{Type: ingress.TypeHangup, Payload: nil},
	}
	for _, f := range cases {
		enc, err := ingress.Encode(f)
		if err != nil {
			t.Fatalf("encode %s: %v", f.Type, err)
		}
		// Prepend a UUID frame so the reader's leading-frame check passes for
		// non-UUID types under test.
		var stream []byte
		if f.Type != ingress.TypeUUID {
			lead, _ := ingress.Encode(ingress.Frame{Type: ingress.TypeUUID, Payload: []byte("lead")})
			stream = append(stream, lead...)
		}
		stream = append(stream, enc...)

		r := ingress.NewReader(bytes.NewReader(stream))
		if f.Type != ingress.TypeUUID {
			if _, err := r.Read(); err != nil {
				t.Fatalf("reading leading UUID frame: %v", err)
			}
		}
		got, err := r.Read()
		if err != nil {
			t.Fatalf("decode %s: %v", f.Type, err)
		}
		if got.Type != f.Type || !bytes.Equal(got.Payload, f.Payload) {
			t.Errorf("round-trip mismatch: got %+v, want %+v", got, f)
		}
	}
}

func TestEncode_PayloadTooLarge(t *testing.T) {
	_, err := ingress.Encode(ingress.Frame{Type: ingress.TypeAudio24K, Payload: make([]byte, 64*1024+1)})
	if !errors.Is(err, ingress.ErrProtocol) {
		t.Fatalf("expected ErrProtocol, got %v", err)
	}
}

func TestEncode_PayloadExactlyAtBoundary(t *testing.T) {
	// 65536 bytes cannot be represented by the 16-bit length field; it must
	// be rejected rather than silently wrapped to a zero-length frame.
	_, err := ingress.Encode(ingress.Frame{Type: ingress.TypeAudio24K, Payload: make([]byte, 64*1024)})
	if !errors.Is(err, ingress.ErrProtocol) {
		t.Fatalf("expected ErrProtocol for a 65536-byte payload, got %v", err)
	}
}

func TestReader_RejectsOversizedLength(t *testing.T) {
	// Hand-crafted header claiming the largest 16-bit length (0xFFFF) with no
	// payload behind it — the short payload read must surface as ErrProtocol.
	var buf bytes.Buffer
	buf.WriteByte(byte(ingress.TypeAudio24K))
	buf.WriteByte(0xFF)
	buf.WriteByte(0xFF)
	_, err := readOne(t, buf.Bytes())
	if !errors.Is(err, ingress.ErrProtocol) {
		t.Fatalf("expected ErrProtocol, got %v", err)
	}
}

func TestReader_RequiresLeadingUUIDFrame(t *testing.T) {
	enc, _ := ingress.Encode(ingress.Frame{Type: ingress.TypeAudio24K, Payload: make([]byte, 960)})
	_, err := readOne(t, enc)
	if !errors.Is(err, ingress.ErrProtocol) {
		t.Fatalf("expected ErrProtocol for missing leading UUID frame, got %v", err)
	}
}

func TestReader_RejectsMismatchedAudioLength(t *testing.T) {
	lead, _ := ingress.Encode(ingress.Frame{Type: ingress.TypeUUID, Payload: []byte("x")})
	bad, _ := ingress.Encode(ingress.Frame{Type: ingress.TypeAudio24K, Payload: make([]byte, 100)})
	r := ingress.NewReader(bytes.NewReader(append(lead, bad...)))
	if _, err := r.Read(); err != nil {
		t.Fatalf("reading leading UUID frame: %v", err)
	}
	_, err := r.Read()
	if !errors.Is(err, ingress.ErrProtocol) {
		t.Fatalf("expected ErrProtocol for mismatched audio frame length, got %v", err)
	}
}

func TestReader_S1GreetingWireBytes(t *testing.T) {
	// Literal bytes from spec scenario S1: 01 00 24 "a1b2…" (a 36-byte UUID).
	callID := "a1b2c3d4-0000-0000-0000-000000000000"
	if len(callID) != 0x24 {
		t.Fatalf("test fixture call id must be 0x24 bytes, got %d", len(callID))
	}
	enc, err := ingress.Encode(ingress.Frame{Type: ingress.TypeUUID, Payload: []byte(callID)})
	if err != nil {
		t.Fatal(err)
	}
	if enc[0] != 0x01 || enc[1] != 0x00 || enc[2] != 0x24 {
		t.Fatalf("unexpected header bytes: % x", enc[:3])
	}
	f, err := readOne(t, enc)
	if err != nil {
		t.Fatal(err)
	}
	if string(f.Payload) != callID {
		t.Errorf("got payload %q, want %q", f.Payload, callID)
	}
}

func TestReader_EOFBetweenFrames(t *testing.T) {
	lead, _ := ingress.Encode(ingress.Frame{Type: ingress.TypeUUID, Payload: []byte("x")})
	r := ingress.NewReader(io.MultiReader(bytes.NewReader(lead), strings.NewReader("")))
	if _, err := r.Read(); err != nil {
		t.Fatalf("unexpected error on first frame: %v", err)
	}
	if _, err := r.Read(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF after stream end, got %v", err)
	}
}

func TestWriteFrame_SingleWrite(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	if err := ingress.WriteFrame(w, ingress.Frame{Type: ingress.TypeHangup}); err != nil {
		t.Fatal(err)
	}
	w.Flush()
	if got := buf.Bytes(); len(got) != 3 {
		t.Fatalf("expected 3-byte frame, got %d bytes", len(got))
	}
}
