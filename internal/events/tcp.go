package events

import (
	"net"
	"sync"

	"github.com/fabiand/igor/pkg/log"
)

// TCPBroadcaster listens on a local TCP socket and writes every
// published event line to each currently-connected client, the way the
// original igord's remote-debug event stream worked before NATS existed
// in this stack.
type TCPBroadcaster struct {
	ln net.Listener

	mu      sync.Mutex
	clients map[net.Conn]struct{}
}

// NewTCPBroadcaster starts listening on addr (e.g. ":7780") and accepts
// connections in the background until Close is called.
func NewTCPBroadcaster(addr string) (*TCPBroadcaster, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	b := &TCPBroadcaster{ln: ln, clients: map[net.Conn]struct{}{}}
	go b.acceptLoop()
	return b, nil
}

func (b *TCPBroadcaster) acceptLoop() {
	for {
		conn, err := b.ln.Accept()
		if err != nil {
			return // listener closed
		}
		b.mu.Lock()
		b.clients[conn] = struct{}{}
		b.mu.Unlock()
	}
}

// Publish writes the lifecycle event line to every connected client,
// dropping (and closing) any client whose write fails.
func (b *TCPBroadcaster) Publish(hook, cookie string) error {
	line := Render(hook, cookie)

	b.mu.Lock()
	defer b.mu.Unlock()
	for conn := range b.clients {
		if _, err := conn.Write(line); err != nil {
			log.Warnf("events: tcp client write failed, dropping: %v", err)
			conn.Close()
			delete(b.clients, conn)
		}
	}
	return nil
}

// Close stops accepting new clients and disconnects every current one.
func (b *TCPBroadcaster) Close() error {
	err := b.ln.Close()

	b.mu.Lock()
	defer b.mu.Unlock()
	for conn := range b.clients {
		conn.Close()
	}
	b.clients = map[net.Conn]struct{}{}
	return err
}
