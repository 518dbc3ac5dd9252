package opus

import (
	"bytes"
	"testing"
)

// TestInt16RoundTrip checks that PCM byte/int16 conversion round-trips.
func TestInt16RoundTrip(t *testing.T) {
	pcm := []int16{0, 1, -1, 32767, -32768, 12345, -12345}
	b := int16sToBytes(pcm)
	got := bytesToInt16s(b)
	if len(got) != len(pcm) {
		t.Fatalf("expected %d samples, got %d", len(pcm), len(got))
	}
	for i := range pcm {
		if got[i] != pcm[i] {
			t.Errorf("sample %d: expected %d, got %d", i, pcm[i], got[i])
		}
	}
}

// TestEncodeDecode checks that a full 20 ms stereo frame survives an
// encode/decode cycle with the correct output size.
func TestEncodeDecode(t *testing.T) {
	enc, err := NewEncoder()
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}
	dec, err := NewDecoder()
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}

	// One 20 ms stereo frame of silence: FrameSize samples × 2 channels × 2 bytes.
	pcm := make([]byte, FrameSize*Channels*2)
	packet, err := enc.Encode(pcm)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(packet) == 0 {
		t.Fatal("expected non-empty opus packet")
	}

	decoded, err := dec.Decode(packet)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(decoded) != len(pcm) {
		t.Errorf("expected %d decoded bytes, got %d", len(pcm), len(decoded))
	}
}

// TestDecodeGarbage checks that invalid packets return an error rather than panic.
func TestDecodeGarbage(t *testing.T) {
	dec, err := NewDecoder()
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}
	if _, err := dec.Decode(bytes.Repeat([]byte{0xff}, 3)); err == nil {
		t.Error("expected error for garbage packet")
	}
}
