package chat

import (
	"net"
	"strings"

	"github.com/pkg/errors"
)

// Client is one chat participant over a single TCP connection.
type Client struct {
	conn net.Conn
	nick string
}

// Dial connects to the server and announces the nickname with HELLO.
func Dial(addr, nick string) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "connecting to %s", addr)
	}
	if err := WriteFrame(conn, MsgHello, []byte(nick)); err != nil {
		conn.Close()
		return nil, err
	}
	return &Client{conn: conn, nick: nick}, nil
}

// Send transmits one chat line.
func (c *Client) Send(text string) error {
	return WriteFrame(c.conn, MsgChat, []byte(text))
}

// Receive blocks for the next server frame.
func (c *Client) Receive() (MsgType, []byte, error) {
	return ReadFrame(c.conn)
}

// Close announces BYE and tears the connection down.
func (c *Client) Close() error {
	_ = WriteFrame(c.conn, MsgBye, []byte(c.nick))
	return c.conn.Close()
}

// SplitBroadcast separates a SERVER_BROADCAST payload into sender and text.
func SplitBroadcast(payload []byte) (from, text string) {
	parts := strings.SplitN(string(payload), "\n", 2)
	from = parts[0]
	if len(parts) == 2 {
		text = parts[1]
	}
	return from, text
}
