package ring

import "testing"

func TestRingBufferKeepsNewestValues(t *testing.T) {
	buffer := NewRingBuffer[int](3)
	for _, v := range []int{1, 2, 3, 4, 5} {
		buffer.Add(v)
	}

	values := buffer.Values()
	expected := []int{3, 4, 5}
	if len(values) != len(expected) {
		t.Fatalf("expected %d values, got %d", len(expected), len(values))
	}
	for i := range expected {
		if values[i] != expected[i] {
			t.Fatalf("expected %v, got %v", expected, values)
		}
	}
	if last, ok := buffer.Last(); !ok || last != 5 {
		t.Fatalf("expected last=5, got %d ok=%v", last, ok)
	}
}

func TestRingBufferPartialFill(t *testing.T) {
	buffer := NewRingBuffer[string](5)
	buffer.Add("a")

	if buffer.Len() != 1 || buffer.Cap() != 5 {
		t.Fatalf("expected len=1 cap=5, got len=%d cap=%d", buffer.Len(), buffer.Cap())
	}
	if values := buffer.Values(); len(values) != 1 || values[0] != "a" {
		t.Fatalf("unexpected values %v", values)
	}
}

func TestRingBufferEmpty(t *testing.T) {
	buffer := NewRingBuffer[float64](2)
	if _, ok := buffer.Last(); ok {
		t.Fatalf("expected no last value on empty buffer")
	}
	if len(buffer.Values()) != 0 {
		t.Fatalf("expected empty values")
	}
}
