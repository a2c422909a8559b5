package chat

import (
	"log"
	"net"
	"sync"

	"github.com/pkg/errors"
)

// Server is the chat hub: one accept loop, one worker goroutine per client,
// broadcasts fan out to every registered client.
type Server struct {
	ln net.Listener

	mu      sync.Mutex
	clients map[net.Conn]string // conn -> nickname
}

// NewServer binds the listening socket.
func NewServer(addr string) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "listening on %s", addr)
	}
	return &Server{
		ln:      ln,
		clients: make(map[net.Conn]string),
	}, nil
}

// Addr reports the bound listen address.
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

// Close stops the accept loop and disconnects every client.
func (s *Server) Close() error {
	err := s.ln.Close()
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.clients {
		conn.Close()
	}
	return err
}

// Serve runs the accept loop until the listener is closed.
func (s *Server) Serve() error {
	log.Printf("Chat server listening on %s\n", s.ln.Addr())
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return err
		}
		go s.handleClient(conn)
	}
}

// broadcast sends one frame to every registered client.
func (s *Server) broadcast(msgType MsgType, payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.clients {
		if err := WriteFrame(conn, msgType, payload); err != nil {
			log.Printf("Broadcast to %s failed: %v\n", conn.RemoteAddr(), err)
		}
	}
}

func (s *Server) register(conn net.Conn, nick string) {
	s.mu.Lock()
	s.clients[conn] = nick
	s.mu.Unlock()
}

// unregister removes the client and reports whether it was registered.
func (s *Server) unregister(conn net.Conn) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	nick, ok := s.clients[conn]
	if ok {
		delete(s.clients, conn)
	}
	return nick, ok
}

// handleClient is the per-client worker. The first frame must be HELLO.
func (s *Server) handleClient(conn net.Conn) {
	defer conn.Close()

	msgType, payload, err := ReadFrame(conn)
	if err != nil || msgType != MsgHello || len(payload) == 0 {
		log.Printf("Client %s did not say HELLO, dropping\n", conn.RemoteAddr())
		return
	}
	nick := string(payload)
	s.register(conn, nick)
	log.Printf("%s joined from %s\n", nick, conn.RemoteAddr())
	s.broadcast(MsgUserJoin, []byte(nick))

	defer func() {
		if left, ok := s.unregister(conn); ok {
			log.Printf("%s left\n", left)
			s.broadcast(MsgUserLeave, []byte(left))
		}
	}()

	for {
		msgType, payload, err := ReadFrame(conn)
		if err != nil {
			return // disconnect, the deferred unregister broadcasts the leave
		}
		switch msgType {
		case MsgChat:
			body := append([]byte(nick+"\n"), payload...)
			s.broadcast(MsgBroadcast, body)
		case MsgBye:
			return
		default:
			// unknown client frame types are ignored
		}
	}
}
