package audio

import (
	"encoding/binary"
	"testing"
	"time"
)

func TestEncodeWAVPCM16LEHeader(t *testing.T) {
	pcm := []byte{0x00, 0x00, 0xE8, 0x03, 0x18, 0xFC}
	wav := EncodeWAVPCM16LE(pcm, 16000)

	if len(wav) != 44+len(pcm) {
		t.Fatalf("len = %d, want %d", len(wav), 44+len(pcm))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		t.Fatal("missing RIFF/WAVE markers")
	}
	if sr := binary.LittleEndian.Uint32(wav[24:28]); sr != 16000 {
		t.Errorf("sample rate = %d", sr)
	}
	if ds := binary.LittleEndian.Uint32(wav[40:44]); ds != uint32(len(pcm)) {
		t.Errorf("data size = %d, want %d", ds, len(pcm))
	}
	if string(wav[44:]) != string(pcm) {
		t.Error("pcm payload mismatch")
	}
}

func TestToneDurationAndAmplitude(t *testing.T) {
	pcm := Tone(440, 100*time.Millisecond, 16000)
	if len(pcm) != 1600*2 {
		t.Fatalf("len = %d, want %d", len(pcm), 1600*2)
	}
	var peak int16
	for i := 0; i+1 < len(pcm); i += 2 {
		s := int16(binary.LittleEndian.Uint16(pcm[i : i+2]))
		if s > peak {
			peak = s
		}
	}
	if peak == 0 {
		t.Fatal("tone is silent")
	}
	if peak > 22000 {
		t.Errorf("peak = %d, want headroom below int16 max", peak)
	}
}

func TestToneDefaultsNeverEmpty(t *testing.T) {
	if len(Tone(0, 0, 0)) == 0 {
		t.Fatal("tone with zero inputs produced no samples")
	}
	if len(ToneWAV(0, 0, 0)) <= 44 {
		t.Fatal("wav with zero inputs has no payload")
	}
}
