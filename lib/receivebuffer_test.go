package lib

import (
	"bytes"
	"testing"
)

func TestReceiveBufferAdmitPolicy(t *testing.T) {
	b := NewReceiveBuffer(4)

	if got := b.Admit(1, []byte("one")); got != AdmitAcceptedNew {
		t.Errorf("fresh segment: got %v, want accepted", got)
	}
	if got := b.Admit(1, []byte("one")); got != AdmitDuplicate {
		t.Errorf("re-admitted buffered segment: got %v, want duplicate", got)
	}
	if got := b.Admit(5, []byte("five")); got != AdmitOutOfWindow {
		t.Errorf("segment at expected+window: got %v, want out-of-window", got)
	}

	var out bytes.Buffer
	if _, err := b.DrainPrefix(&out); err != nil {
		t.Fatal(err)
	}
	if b.ExpectedSeq() != 2 {
		t.Fatalf("expectedSeq = %d, want 2", b.ExpectedSeq())
	}
	if got := b.Admit(1, []byte("one")); got != AdmitDuplicate {
		t.Errorf("already-delivered segment: got %v, want duplicate", got)
	}
}

func TestReceiveBufferDrainsInOrder(t *testing.T) {
	b := NewReceiveBuffer(8)

	// arrive out of order: 3, 1, 2
	b.Admit(3, []byte("ccc"))
	var out bytes.Buffer
	if _, err := b.DrainPrefix(&out); err != nil {
		t.Fatal(err)
	}
	if out.Len() != 0 {
		t.Error("nothing should drain while segment 1 is missing")
	}

	b.Admit(1, []byte("aaa"))
	b.Admit(2, []byte("bbb"))
	n, err := b.DrainPrefix(&out)
	if err != nil {
		t.Fatal(err)
	}
	if n != 9 || out.String() != "aaabbbccc" {
		t.Errorf("drained %q (%d bytes), want aaabbbccc", out.String(), n)
	}
	if b.ExpectedSeq() != 4 {
		t.Errorf("expectedSeq = %d, want 4", b.ExpectedSeq())
	}
	if b.Buffered() != 0 {
		t.Errorf("buffer should be empty, has %d entries", b.Buffered())
	}
}

func TestReceiveBufferSackMask(t *testing.T) {
	b := NewReceiveBuffer(32)

	// expected is 1; buffer 2, 3 and 5
	b.Admit(2, []byte("b"))
	b.Admit(3, []byte("c"))
	b.Admit(5, []byte("e"))

	mask := b.SackMask()
	want := uint32(1<<0 | 1<<1 | 1<<3) // bits for expected+1, +2, +4
	if mask != want {
		t.Errorf("SackMask = %#x, want %#x", mask, want)
	}

	// fill the hole and drain; mask is relative to the new expected
	b.Admit(1, []byte("a"))
	var out bytes.Buffer
	if _, err := b.DrainPrefix(&out); err != nil {
		t.Fatal(err)
	}
	if b.ExpectedSeq() != 4 {
		t.Fatalf("expectedSeq = %d, want 4", b.ExpectedSeq())
	}
	if got := b.SackMask(); got != uint32(1<<0) {
		t.Errorf("SackMask after drain = %#x, want %#x (segment 5 at bit 0)", got, uint32(1<<0))
	}
}

func TestReceiveBufferExpectedSeqMonotonic(t *testing.T) {
	b := NewReceiveBuffer(8)
	var out bytes.Buffer
	prev := b.ExpectedSeq()
	for _, seq := range []uint32{2, 1, 4, 3, 2, 1} {
		b.Admit(seq, []byte{byte(seq)})
		if _, err := b.DrainPrefix(&out); err != nil {
			t.Fatal(err)
		}
		if b.ExpectedSeq() < prev {
			t.Fatalf("expectedSeq moved backwards: %d -> %d", prev, b.ExpectedSeq())
		}
		prev = b.ExpectedSeq()
	}
	if !bytes.Equal(out.Bytes(), []byte{1, 2, 3, 4}) {
		t.Errorf("delivered bytes %v, want strictly in-order 1..4 with no repeats", out.Bytes())
	}
}

func TestReceiveBufferWindowBounds(t *testing.T) {
	b := NewReceiveBuffer(4)
	if !b.IsInWindow(1) || !b.IsInWindow(4) {
		t.Error("1 and 4 should be inside a window of 4 at expected=1")
	}
	if b.IsInWindow(5) {
		t.Error("5 should be outside a window of 4 at expected=1")
	}
	if b.IsInWindow(0) {
		t.Error("0 is below the window")
	}
}
