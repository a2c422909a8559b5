package lib

import (
	"bytes"
	"net"
	"testing"
)

func marshalPacket(t *testing.T, hdr PacketHeader, payload []byte) []byte {
	t.Helper()
	buf := make([]byte, HeaderLength+MaxPayload)
	pkt := Packet{Header: hdr, Payload: payload}
	n, err := pkt.Marshal(buf)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	return buf[:n]
}

func TestPacketRoundTrip(t *testing.T) {
	testCases := []struct {
		name    string
		hdr     PacketHeader
		payload []byte
	}{
		{"control", PacketHeader{Seq: 42, Ack: 7, Wnd: 32, Flags: ACKFlag, SackMask: 0x5}, nil},
		{"data", PacketHeader{Seq: 0xdeadbeef, Wnd: 16, Flags: DATAFlag}, []byte("hello, world")},
		{"odd length payload", PacketHeader{Seq: 1, Flags: DATAFlag}, []byte("abc")},
		{"full payload", PacketHeader{Seq: 9, Flags: DATAFlag}, bytes.Repeat([]byte{0xA5}, MaxPayload)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			frame := marshalPacket(t, tc.hdr, tc.payload)

			var got Packet
			if err := got.Unmarshal(frame); err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}
			if got.Header.Seq != tc.hdr.Seq || got.Header.Ack != tc.hdr.Ack ||
				got.Header.Wnd != tc.hdr.Wnd || got.Header.Flags != tc.hdr.Flags ||
				got.Header.SackMask != tc.hdr.SackMask {
				t.Errorf("header mismatch: got %+v, want %+v", got.Header, tc.hdr)
			}
			if got.Header.Len != uint16(len(tc.payload)) {
				t.Errorf("len = %d, want %d", got.Header.Len, len(tc.payload))
			}
			if !bytes.Equal(got.Payload, tc.payload) {
				t.Error("payload mismatch")
			}
		})
	}
}

func TestUnmarshalRejectsCorruption(t *testing.T) {
	frame := marshalPacket(t, PacketHeader{Seq: 5, Flags: DATAFlag}, []byte("payload bytes"))

	for i := 0; i < len(frame); i++ {
		corrupted := append([]byte(nil), frame...)
		corrupted[i] ^= 0xFF
		var pkt Packet
		if err := pkt.Unmarshal(corrupted); err == nil {
			t.Errorf("corruption at byte %d was not detected", i)
		}
	}
}

func TestUnmarshalRejectsShortPacket(t *testing.T) {
	var pkt Packet
	if err := pkt.Unmarshal(make([]byte, HeaderLength-1)); err == nil {
		t.Error("short packet should fail to parse")
	}
}

func TestUnmarshalRejectsLengthMismatch(t *testing.T) {
	frame := marshalPacket(t, PacketHeader{Seq: 5, Flags: DATAFlag}, []byte("0123456789"))
	// truncate the payload but fix the checksum so only the length check fires
	truncated := append([]byte(nil), frame[:len(frame)-4]...)
	truncated[18], truncated[19] = 0, 0
	cs := CalculateChecksum(truncated)
	truncated[18] = byte(cs >> 8)
	truncated[19] = byte(cs)

	var pkt Packet
	if err := pkt.Unmarshal(truncated); err == nil {
		t.Error("length mismatch should fail to parse")
	}
}

func TestUnknownFlagBitsSurvive(t *testing.T) {
	frame := marshalPacket(t, PacketHeader{Seq: 3, Flags: DATAFlag | 0x4000}, []byte("x"))
	var pkt Packet
	if err := pkt.Unmarshal(frame); err != nil {
		t.Fatalf("unknown flag bits must not break parsing: %v", err)
	}
	if pkt.Header.Flags&DATAFlag == 0 {
		t.Error("known flag lost")
	}
}

func TestVerifyChecksumOnSerializedFrame(t *testing.T) {
	frame := marshalPacket(t, PacketHeader{Seq: 11, Ack: 12, Wnd: 32, Flags: ACKFlag}, nil)
	if !VerifyChecksum(frame) {
		t.Error("serialized frame should verify")
	}
	frame[0] ^= 0x01
	if VerifyChecksum(frame) {
		t.Error("modified frame should not verify")
	}
}

func TestGenerateISNVaries(t *testing.T) {
	local := net.IPv4(10, 0, 0, 1)
	remote := net.IPv4(10, 0, 0, 2)

	seen := make(map[uint32]bool)
	for port := 40000; port < 40100; port++ {
		seen[GenerateISN(local, port, remote, 9000)] = true
	}
	if len(seen) < 2 {
		t.Error("ISNs should vary across 4-tuples")
	}
}
