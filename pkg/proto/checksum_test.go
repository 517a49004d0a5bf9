package proto

import "testing"

func TestFletcher16KnownVector(t *testing.T) {
	// "abcde" is a commonly cited Fletcher-16 test vector for the
	// (0,0)-seeded variant; this implementation seeds with (0xFF,0xFF)
	// per the wire format, so we only assert internal consistency here:
	// the same input always checksums the same, and differs from a
	// mutated input.
	a := fletcher16([]byte("abcde"))
	b := fletcher16([]byte("abcde"))
	if a != b {
		t.Fatalf("checksum not deterministic: %x vs %x", a, b)
	}
	c := fletcher16([]byte("abcdf"))
	if a == c {
		t.Fatalf("checksum did not change for different input")
	}
}

func TestFletcher16IncrementalMatchesOneShot(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog")
	oneShot := fletcher16(data)

	f := NewFletcher16()
	for _, b := range data {
		f.WriteByte(b)
	}
	if f.Sum16() != oneShot {
		t.Fatalf("incremental checksum %x != one-shot %x", f.Sum16(), oneShot)
	}
}

func TestFletcher16EmptyInput(t *testing.T) {
	f := NewFletcher16()
	if f.Sum16() != (0xFF<<8 | 0xFF) {
		t.Fatalf("empty-input checksum should equal the seed, got %x", f.Sum16())
	}
}
