package audio

import (
	"bytes"
	"io"
	"testing"
	"time"
)

func TestConcatPreservesOrder(t *testing.T) {
	a := Concat([][]byte{[]byte("ab"), []byte("cd"), []byte("e")}, "", time.Now(), time.Second)
	if got := string(a.Bytes()); got != "abcde" {
		t.Fatalf("expected abcde, got %q", got)
	}
	if a.MIMEType() != MIMEWebM {
		t.Fatalf("expected default mime, got %s", a.MIMEType())
	}
}

func TestConcatZeroFragmentsIsEmpty(t *testing.T) {
	a := Concat(nil, MIMEWebM, time.Now(), 0)
	if !a.Empty() || a.Size() != 0 {
		t.Fatalf("expected empty artifact, got %d bytes", a.Size())
	}
}

func TestArtifactIsImmutable(t *testing.T) {
	src := []byte("hello")
	a := NewArtifact(src, MIMEWebM, time.Now(), 0)
	src[0] = 'j'
	out := a.Bytes()
	out[1] = 'a'
	if got := string(a.Bytes()); got != "hello" {
		t.Fatalf("artifact mutated: %q", got)
	}
	read, err := io.ReadAll(a.Reader())
	if err != nil || string(read) != "hello" {
		t.Fatalf("reader mismatch: %q %v", read, err)
	}
}

func TestEncodeAndDescribeWAV(t *testing.T) {
	samples := make([]int, 8000)
	data, err := EncodePCM16(samples, 16000)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("RIFF")) {
		t.Fatalf("expected RIFF header")
	}
	info, err := DescribeWAV(data)
	if err != nil {
		t.Fatalf("describe: %v", err)
	}
	if info.SampleRate != 16000 || info.Channels != 1 || info.BitDepth != 16 {
		t.Fatalf("unexpected info %+v", info)
	}
	if info.Duration != 500*time.Millisecond {
		t.Fatalf("expected 500ms, got %s", info.Duration)
	}
}

func TestDescribeWAVRejectsOpaqueBytes(t *testing.T) {
	if _, err := DescribeWAV(make([]byte, 16)); err == nil {
		t.Fatalf("expected error for non-wav payload")
	}
}

func TestSynthesizedDefaults(t *testing.T) {
	s := Synthesized{Data: make([]byte, 16)}
	if s.MIMEType() != MIMEWAV || s.Size() != 16 {
		t.Fatalf("unexpected synthesized defaults %s %d", s.MIMEType(), s.Size())
	}
}
