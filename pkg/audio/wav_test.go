package audio

import (
	"encoding/binary"
	"testing"
)

func TestEncodeWAVHeader(t *testing.T) {
	pcm := make([]byte, 3200) // 100ms at 16kHz PCM16
	data, err := EncodeWAV(pcm, 16000)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(data) != 44+len(pcm) {
		t.Fatalf("len = %d, want %d", len(data), 44+len(pcm))
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		t.Fatalf("bad magic: %q %q", data[0:4], data[8:12])
	}
	if rate := binary.LittleEndian.Uint32(data[24:28]); rate != 16000 {
		t.Fatalf("sample rate = %d", rate)
	}
	if ch := binary.LittleEndian.Uint16(data[22:24]); ch != 1 {
		t.Fatalf("channels = %d", ch)
	}
	if bits := binary.LittleEndian.Uint16(data[34:36]); bits != 16 {
		t.Fatalf("bits = %d", bits)
	}
	if size := binary.LittleEndian.Uint32(data[40:44]); size != uint32(len(pcm)) {
		t.Fatalf("data size = %d", size)
	}
}

func TestEncodeWAVRejectsEmpty(t *testing.T) {
	if _, err := EncodeWAV(nil, 16000); err == nil {
		t.Fatalf("expected error for empty audio")
	}
	if _, err := EncodeWAV([]byte{0, 0}, 0); err == nil {
		t.Fatalf("expected error for zero sample rate")
	}
}

func TestDuration(t *testing.T) {
	pcm := make([]byte, 32000) // 1s at 16kHz PCM16
	data, err := EncodeWAV(pcm, 16000)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	d, err := Duration(data)
	if err != nil {
		t.Fatalf("duration: %v", err)
	}
	if d != 1.0 {
		t.Fatalf("duration = %f, want 1.0", d)
	}
}
