package lib

import (
	"fmt"
	"log"
	"time"

	rp "github.com/Clouded-Sabre/ringpool/lib"
)

var (
	emptySlice []byte
	Pool       *rp.RingPool
)

// InitPool creates the process-wide payload chunk pool. Must be called once
// before any engine is constructed. Every chunk holds one segment payload.
func InitPool(poolSize int, poolDebug bool) {
	if len(emptySlice) == 0 {
		emptySlice = make([]byte, MaxPayload)
	}
	rp.Debug = poolDebug
	Pool = rp.NewRingPool("RTP: ", poolSize, NewPayload, MaxPayload)
	Pool.Debug = poolDebug
	Pool.ProcessTimeThreshold = 10 * time.Millisecond
}

// Payload represents one segment payload byte slice
type Payload struct {
	payloadBytes []byte
	length       int
}

// NewPayload creates a new pool element data instance.
func NewPayload(params ...interface{}) rp.DataInterface {
	if len(params) != 1 {
		log.Println("NewPayload: Invalid number of calling parameters. Should be only one: bufferLength")
		return nil
	}

	bufferLength, ok := params[0].(int)
	if !ok {
		log.Println("NewPayload: Invalid data type of bufferLength. Should be of type int")
		return nil
	}

	if len(emptySlice) == 0 {
		emptySlice = make([]byte, bufferLength)
	}

	return &Payload{
		payloadBytes: make([]byte, bufferLength),
	}
}

// SetContent sets the content of the payload
func (p *Payload) SetContent(s string) {
	p.payloadBytes = []byte(s)
	p.length = len(s)
}

// Reset resets the content of the payload
func (p *Payload) Reset() {
	copy(p.payloadBytes, emptySlice)
	p.length = 0
}

// PrintContent prints the content of the payload
func (p *Payload) PrintContent() {
	fmt.Println("Content:", string(p.payloadBytes[:p.length]))
}

func (p *Payload) Copy(src []byte) error {
	if len(src) > len(p.payloadBytes) {
		return fmt.Errorf("Payload Copy: Source byte slice(%d) is longer than bufferLength(%d)", len(src), len(p.payloadBytes))
	}
	copy(p.payloadBytes, src)
	p.length = len(src)
	return nil
}

func (p *Payload) GetSlice() []byte {
	return p.payloadBytes[:p.length]
}
