package lib

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"net"
)

// Wire layout of the fixed header, network byte order, 20 bytes:
//
//	Byte  0-3:   seq
//	Byte  4-7:   ack
//	Byte  8-9:   wnd        (advertised window in segments)
//	Byte 10-11:  len        (payload byte count)
//	Byte 12-13:  flags
//	Byte 14-17:  sack_mask
//	Byte 18-19:  checksum   (ones' complement over the whole serialized segment)
//
// Both peers must use this exact layout; it is part of the wire contract.

// PacketHeader represents the fixed header of an RTP segment.
type PacketHeader struct {
	Seq      uint32 // absolute sequence number (ISN + relative index)
	Ack      uint32 // cumulative acknowledgment number
	Wnd      uint16 // advertised window in segments
	Len      uint16 // payload byte count
	Flags    uint16 // bitmask over SYN/ACK/FIN/DATA/RST
	SackMask uint32 // bitmap of segments buffered after the cumulative point
	Checksum uint16
}

// Packet is a parsed segment. Payload aliases the receive buffer it was
// parsed from and is only valid until the next socket read; callers that
// keep it must copy it out (the receive buffer copies into a pool chunk).
type Packet struct {
	Header  PacketHeader
	Payload []byte
}

// Marshal serializes the packet into buffer and returns the frame length.
// The checksum field is computed over the whole frame with itself zeroed.
func (p *Packet) Marshal(buffer []byte) (int, error) {
	frameLength := HeaderLength + len(p.Payload)
	if frameLength > len(buffer) {
		return 0, fmt.Errorf("buffer size (%d) is too small to hold the frame (%d)", len(buffer), frameLength)
	}
	if len(p.Payload) > MaxPayload {
		return 0, fmt.Errorf("payload length (%d) exceeds MaxPayload (%d)", len(p.Payload), MaxPayload)
	}

	frame := buffer[:frameLength]
	binary.BigEndian.PutUint32(frame[0:4], p.Header.Seq)
	binary.BigEndian.PutUint32(frame[4:8], p.Header.Ack)
	binary.BigEndian.PutUint16(frame[8:10], p.Header.Wnd)
	binary.BigEndian.PutUint16(frame[10:12], uint16(len(p.Payload)))
	binary.BigEndian.PutUint16(frame[12:14], p.Header.Flags)
	binary.BigEndian.PutUint32(frame[14:18], p.Header.SackMask)
	// leave frame[18:20] (checksum) as all zero for now
	binary.BigEndian.PutUint16(frame[18:20], 0)

	if len(p.Payload) > 0 {
		copy(frame[HeaderLength:], p.Payload)
	}

	checksum := CalculateChecksum(frame)
	binary.BigEndian.PutUint16(frame[18:20], checksum)

	return frameLength, nil
}

// Unmarshal parses a received datagram. Any failure means the datagram must
// be dropped silently by the caller. Unknown flag bits are preserved and
// ignored by the engines.
func (p *Packet) Unmarshal(data []byte) error {
	if len(data) < HeaderLength {
		return fmt.Errorf("the length(%d) of data is too short to be unmarshalled", len(data))
	}
	if !VerifyChecksum(data) {
		return fmt.Errorf("checksum verification failed")
	}

	p.Header.Seq = binary.BigEndian.Uint32(data[0:4])
	p.Header.Ack = binary.BigEndian.Uint32(data[4:8])
	p.Header.Wnd = binary.BigEndian.Uint16(data[8:10])
	p.Header.Len = binary.BigEndian.Uint16(data[10:12])
	p.Header.Flags = binary.BigEndian.Uint16(data[12:14])
	p.Header.SackMask = binary.BigEndian.Uint32(data[14:18])
	p.Header.Checksum = binary.BigEndian.Uint16(data[18:20])

	if int(p.Header.Len)+HeaderLength != len(data) {
		return fmt.Errorf("header len(%d) does not match frame size(%d)", p.Header.Len, len(data))
	}
	if p.Header.Len > 0 {
		p.Payload = data[HeaderLength:]
	} else {
		p.Payload = nil
	}
	return nil
}

// CalculateChecksum computes the ones' complement sum over buffer.
func CalculateChecksum(buffer []byte) uint16 {
	var cksum uint32 = 0

	// Process 16-bit words (2 bytes each)
	for i := 0; i < len(buffer)-1; i += 2 {
		word := binary.BigEndian.Uint16(buffer[i : i+2])
		cksum += uint32(word)
	}

	// Handle remaining odd byte, if any
	if len(buffer)%2 != 0 {
		cksum += uint32(buffer[len(buffer)-1]) << 8 // Shift last byte to 16 bits
	}

	// Fold 32-bit sum to 16 bits
	cksum = (cksum >> 16) + (cksum & 0xffff)
	cksum += (cksum >> 16)

	// Return one's complement of the final sum
	return ^uint16(cksum)
}

// VerifyChecksum reports whether a serialized frame checksums to zero.
func VerifyChecksum(data []byte) bool {
	return CalculateChecksum(data) == 0
}

// isnSalt is the only module-level state the core requires: an 8-byte
// per-process salt drawn once at startup.
var isnSalt [8]byte

func init() {
	if _, err := rand.Read(isnSalt[:]); err != nil {
		// crypto/rand failing is unrecoverable; the salt only randomizes
		// starting points, so fall back to the zero salt.
		for i := range isnSalt {
			isnSalt[i] = 0
		}
	}
}

// GenerateISN derives the initial segment number for one side of a
// connection: FNV-1a over the 4-tuple and the process salt, plus the
// millisecond clock. Not a security property.
func GenerateISN(localIP net.IP, localPort int, remoteIP net.IP, remotePort int) uint32 {
	var tuple [12]byte
	copy(tuple[0:4], localIP.To4())
	binary.BigEndian.PutUint16(tuple[4:6], uint16(localPort))
	copy(tuple[6:10], remoteIP.To4())
	binary.BigEndian.PutUint16(tuple[10:12], uint16(remotePort))

	h := fnv.New32a()
	h.Write(tuple[:])
	h.Write(isnSalt[:])
	return h.Sum32() + uint32(nowMs())
}
