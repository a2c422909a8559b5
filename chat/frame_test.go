package chat

import (
	"bytes"
	"io"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	testCases := []struct {
		name    string
		msgType MsgType
		payload []byte
	}{
		{"hello", MsgHello, []byte("alice")},
		{"chat", MsgChat, []byte("hello, world")},
		{"empty payload", MsgBye, nil},
		{"broadcast", MsgBroadcast, []byte("alice\nhi there")},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := WriteFrame(&buf, tc.msgType, tc.payload); err != nil {
				t.Fatalf("WriteFrame: %v", err)
			}

			msgType, payload, err := ReadFrame(&buf)
			if err != nil {
				t.Fatalf("ReadFrame: %v", err)
			}
			if msgType != tc.msgType {
				t.Errorf("type = %#x, want %#x", msgType, tc.msgType)
			}
			if !bytes.Equal(payload, tc.payload) {
				t.Errorf("payload = %q, want %q", payload, tc.payload)
			}
		})
	}
}

func TestFrameMultipleOnOneStream(t *testing.T) {
	var buf bytes.Buffer
	WriteFrame(&buf, MsgHello, []byte("bob"))
	WriteFrame(&buf, MsgChat, []byte("first"))
	WriteFrame(&buf, MsgChat, []byte("second"))

	for _, want := range []string{"bob", "first", "second"} {
		_, payload, err := ReadFrame(&buf)
		if err != nil {
			t.Fatalf("ReadFrame: %v", err)
		}
		if string(payload) != want {
			t.Errorf("payload = %q, want %q", payload, want)
		}
	}
	if _, _, err := ReadFrame(&buf); err != io.EOF {
		t.Errorf("exhausted stream should return EOF, got %v", err)
	}
}

func TestFrameRejectsOversizedPayload(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, MsgChat, make([]byte, MaxFramePayload+1)); err == nil {
		t.Error("oversized write should fail")
	}

	// an oversized length on the wire is rejected before allocation
	buf.Reset()
	buf.Write([]byte{byte(MsgChat), 0xFF, 0xFF, 0xFF, 0xFF})
	if _, _, err := ReadFrame(&buf); err == nil {
		t.Error("oversized length field should fail to parse")
	}
}

func TestFrameTruncatedPayload(t *testing.T) {
	var buf bytes.Buffer
	WriteFrame(&buf, MsgChat, []byte("full message"))
	truncated := buf.Bytes()[:buf.Len()-3]
	if _, _, err := ReadFrame(bytes.NewReader(truncated)); err == nil {
		t.Error("truncated payload should fail to read")
	}
}

func TestSplitBroadcast(t *testing.T) {
	from, text := SplitBroadcast([]byte("carol\nhello there"))
	if from != "carol" || text != "hello there" {
		t.Errorf("got (%q, %q), want (carol, hello there)", from, text)
	}
	from, text = SplitBroadcast([]byte("no-newline"))
	if from != "no-newline" || text != "" {
		t.Errorf("got (%q, %q), want (no-newline, empty)", from, text)
	}
}
