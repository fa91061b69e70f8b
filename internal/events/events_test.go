package events

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderProducesEventXML(t *testing.T) {
	blob := Render("post-setup", "cookie1")
	assert.Equal(t, "<event type='post-setup' session='cookie1' />\n", string(blob))
}

func TestNoopPublisherDiscards(t *testing.T) {
	var p Publisher = Noop{}
	assert.NoError(t, p.Publish("pre-job", "c"))
	assert.NoError(t, p.Close())
}

func TestTCPBroadcasterDeliversToConnectedClient(t *testing.T) {
	b, err := NewTCPBroadcaster("127.0.0.1:0")
	require.NoError(t, err)
	defer b.Close()

	conn, err := net.Dial("tcp", b.ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	// give acceptLoop a moment to register the connection
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, b.Publish("post-end", "cookie42"))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := bufio.NewReader(conn).ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "<event type='post-end' session='cookie42' />\n", line)
}
