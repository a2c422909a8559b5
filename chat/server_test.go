package chat

import (
	"testing"
	"time"
)

// expectFrame reads frames until one of the wanted type arrives, failing
// after the deadline. Join/leave notifications may interleave.
func expectFrame(t *testing.T, c *Client, want MsgType) []byte {
	t.Helper()
	result := make(chan []byte, 1)
	errCh := make(chan error, 1)
	go func() {
		for {
			msgType, payload, err := c.Receive()
			if err != nil {
				errCh <- err
				return
			}
			if msgType == want {
				result <- payload
				return
			}
		}
	}()
	select {
	case payload := <-result:
		return payload
	case err := <-errCh:
		t.Fatalf("connection error while waiting for %#x: %v", want, err)
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for frame type %#x", want)
	}
	return nil
}

func startTestServer(t *testing.T) *Server {
	t.Helper()
	srv, err := NewServer("127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go srv.Serve()
	t.Cleanup(func() { srv.Close() })
	return srv
}

func TestChatBroadcast(t *testing.T) {
	srv := startTestServer(t)

	alice, err := Dial(srv.Addr().String(), "alice")
	if err != nil {
		t.Fatal(err)
	}
	defer alice.Close()
	expectFrame(t, alice, MsgUserJoin) // alice sees her own join

	bob, err := Dial(srv.Addr().String(), "bob")
	if err != nil {
		t.Fatal(err)
	}
	defer bob.Close()
	if got := string(expectFrame(t, alice, MsgUserJoin)); got != "bob" {
		t.Errorf("join notification = %q, want bob", got)
	}

	if err := alice.Send("hello bob"); err != nil {
		t.Fatal(err)
	}
	payload := expectFrame(t, bob, MsgBroadcast)
	from, text := SplitBroadcast(payload)
	if from != "alice" || text != "hello bob" {
		t.Errorf("broadcast = (%q, %q), want (alice, hello bob)", from, text)
	}
}

func TestChatLeaveNotification(t *testing.T) {
	srv := startTestServer(t)

	alice, err := Dial(srv.Addr().String(), "alice")
	if err != nil {
		t.Fatal(err)
	}
	defer alice.Close()
	expectFrame(t, alice, MsgUserJoin)

	bob, err := Dial(srv.Addr().String(), "bob")
	if err != nil {
		t.Fatal(err)
	}
	expectFrame(t, alice, MsgUserJoin)

	bob.Close() // sends BYE
	if got := string(expectFrame(t, alice, MsgUserLeave)); got != "bob" {
		t.Errorf("leave notification = %q, want bob", got)
	}
}
