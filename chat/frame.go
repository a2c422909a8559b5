// Package chat implements the TCP chat subsystem: a length-prefixed frame
// codec, a broadcast hub server with one accept loop and a per-client
// worker, and a thin client.
package chat

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// Frame format: [1-byte type][4-byte payload length, big endian][payload].
// All string payloads are UTF-8.

// MaxFramePayload bounds a single frame's payload (64 KiB).
const MaxFramePayload = 64 * 1024

// MsgType identifies one chat frame.
type MsgType uint8

const (
	MsgHello MsgType = 0x01 // C->S: payload = nickname
	MsgChat  MsgType = 0x02 // C->S: payload = text
	MsgBye   MsgType = 0x03 // C->S: client intends to disconnect

	MsgUserJoin  MsgType = 0x11 // S->C: payload = nickname
	MsgUserLeave MsgType = 0x12 // S->C: payload = nickname
	MsgBroadcast MsgType = 0x13 // S->C: payload = from + '\n' + text
)

// WriteFrame serializes one frame to w.
func WriteFrame(w io.Writer, msgType MsgType, payload []byte) error {
	if len(payload) > MaxFramePayload {
		return errors.Errorf("frame payload too large: %d bytes (max %d)", len(payload), MaxFramePayload)
	}
	var header [5]byte
	header[0] = byte(msgType)
	binary.BigEndian.PutUint32(header[1:5], uint32(len(payload)))
	if _, err := w.Write(header[:]); err != nil {
		return errors.Wrap(err, "writing frame header")
	}
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return errors.Wrap(err, "writing frame payload")
		}
	}
	return nil
}

// ReadFrame reads one complete frame from r.
func ReadFrame(r io.Reader) (MsgType, []byte, error) {
	var header [5]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return 0, nil, err
	}
	msgType := MsgType(header[0])
	length := binary.BigEndian.Uint32(header[1:5])
	if length > MaxFramePayload {
		return 0, nil, errors.Errorf("frame payload too large: %d bytes (max %d)", length, MaxFramePayload)
	}
	if length == 0 {
		return msgType, nil, nil
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, errors.Wrap(err, "reading frame payload")
	}
	return msgType, payload, nil
}
