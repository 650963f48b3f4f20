package ingest

import (
	"net"
	"testing"
	"time"

	"vigil/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func (m *memWriter) at(i int) *core.RawEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.events[i]
}

func newTestBaseListener(writer *memWriter) *BaseListener {
	// Port 0 for auto-assignment
	return NewBaseListener("127.0.0.1", 0, 1000, 0, 0, newTestIngestor(writer), zap.NewNop().Sugar())
}

func TestNewBaseListener(t *testing.T) {
	logger := zap.NewNop().Sugar()

	bl := NewBaseListener("localhost", 514, 1000, 0, 0, newTestIngestor(&memWriter{}), logger)

	assert.NotNil(t, bl)
	assert.Equal(t, "localhost", bl.host)
	assert.Equal(t, 514, bl.port)
	assert.NotNil(t, bl.limiter)
	assert.NotNil(t, bl.stopCh)
	assert.Equal(t, DefaultMaxTCPConnections, bl.maxConnections)
	assert.Equal(t, DefaultMaxConnectionsPerIP, bl.maxConnectionsPerIP)
	assert.Equal(t, logger, bl.logger)
	assert.Nil(t, bl.udpConn)
	assert.Nil(t, bl.tcpListener)
}

func TestStartUDP_PersistsDatagram(t *testing.T) {
	writer := &memWriter{}
	bl := newTestBaseListener(writer)

	go bl.StartUDP("Test")
	defer bl.Stop()

	// Wait for listener to start
	time.Sleep(100 * time.Millisecond)

	addr := bl.udpConn.LocalAddr().(*net.UDPAddr)
	conn, err := net.DialUDP("udp", nil, &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: addr.Port})
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("hello world"))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return writer.count() == 1 },
		time.Second, 10*time.Millisecond, "Datagram should be persisted")

	event := writer.last()
	assert.Equal(t, core.SourceSyslog, event.Source)
	assert.Equal(t, "hello world", event.Payload["raw_message"])
	assert.Equal(t, "127.0.0.1", event.Payload["hostname"])
	assert.Equal(t, "unparsed", event.Payload["tag"])
	assert.Equal(t, "127.0.0.1", event.Payload["sender_ip"])
}

func TestStartUDP_EmptyDatagramPersists(t *testing.T) {
	writer := &memWriter{}
	bl := newTestBaseListener(writer)

	go bl.StartUDP("Test")
	defer bl.Stop()

	time.Sleep(100 * time.Millisecond)

	addr := bl.udpConn.LocalAddr().(*net.UDPAddr)
	conn, err := net.DialUDP("udp", nil, &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: addr.Port})
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte{})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return writer.count() == 1 },
		time.Second, 10*time.Millisecond, "Empty datagram should still be persisted")

	event := writer.last()
	assert.Equal(t, core.SourceSyslog, event.Source)
	assert.Equal(t, "", event.Payload["raw_message"])
	assert.Equal(t, "unparsed", event.Payload["tag"])
}

func TestStartTCP_SameConnectionPersistsInOrder(t *testing.T) {
	writer := &memWriter{}
	bl := newTestBaseListener(writer)

	go bl.StartTCP("Test")
	defer bl.Stop()

	time.Sleep(100 * time.Millisecond)

	conn, err := net.Dial("tcp", bl.tcpListener.Addr().String())
	require.NoError(t, err)

	// Pause between writes so each arrives as its own chunk.
	_, err = conn.Write([]byte("first message"))
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)
	_, err = conn.Write([]byte("second message"))
	require.NoError(t, err)
	conn.Close()

	require.Eventually(t, func() bool { return writer.count() == 2 },
		time.Second, 10*time.Millisecond, "Both messages should be persisted")

	assert.Equal(t, "first message", writer.at(0).Payload["raw_message"],
		"Same-connection messages must persist in receipt order")
	assert.Equal(t, "second message", writer.at(1).Payload["raw_message"])
	assert.Equal(t, core.SourceSyslog, writer.at(0).Source)
	assert.Equal(t, "127.0.0.1", writer.at(0).Payload["sender_ip"])
}

func TestProcess_RateLimitDropsMessage(t *testing.T) {
	writer := &memWriter{}
	bl := newTestBaseListener(writer)
	bl.limiter = rate.NewLimiter(rate.Limit(0), 0)

	bl.process("hello", "127.0.0.1", "udp", "Test")

	assert.Equal(t, 0, writer.count(), "Rate-limited messages must not be persisted")
}
