package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"vigil/metrics"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	// DefaultMaxTCPConnections is the default maximum number of concurrent TCP connections
	DefaultMaxTCPConnections = 1000
	// DefaultMaxConnectionsPerIP prevents a single IP from exhausting the connection pool
	DefaultMaxConnectionsPerIP = 10
	// tcpReadTimeout bounds how long an idle connection may hold a slot
	tcpReadTimeout = 5 * time.Minute
	// udpBufferSize is the maximum datagram size accepted
	udpBufferSize = 65536
)

// BaseListener provides the shared UDP/TCP machinery for listeners. Each
// datagram is dispatched to its own goroutine; each TCP connection gets one
// goroutine that processes its chunks in receipt order.
type BaseListener struct {
	host                string
	port                int
	limiter             *rate.Limiter
	ingestor            *Ingestor
	stopCh              chan struct{}
	wg                  sync.WaitGroup
	logger              *zap.SugaredLogger
	udpConn             net.PacketConn
	tcpListener         net.Listener
	connSemaphore       chan struct{}
	maxConnections      int
	ipConnections       map[string]int
	ipConnectionsMutex  sync.RWMutex
	maxConnectionsPerIP int
}

// NewBaseListener creates a new base listener.
func NewBaseListener(host string, port, rateLimit, maxConnections, maxPerIP int, ingestor *Ingestor, logger *zap.SugaredLogger) *BaseListener {
	if maxConnections <= 0 {
		maxConnections = DefaultMaxTCPConnections
	}
	if maxPerIP <= 0 {
		maxPerIP = DefaultMaxConnectionsPerIP
	}
	if rateLimit <= 0 {
		rateLimit = 5000
	}
	return &BaseListener{
		host:                host,
		port:                port,
		limiter:             rate.NewLimiter(rate.Limit(rateLimit), rateLimit),
		ingestor:            ingestor,
		stopCh:              make(chan struct{}),
		logger:              logger,
		maxConnections:      maxConnections,
		connSemaphore:       make(chan struct{}, maxConnections),
		ipConnections:       make(map[string]int),
		maxConnectionsPerIP: maxPerIP,
	}
}

// StartUDP runs the UDP datagram loop. Each datagram is one complete
// message; its processing is dispatched independently so the read loop
// never blocks on a slow store append.
func (b *BaseListener) StartUDP(name string) {
	addr := fmt.Sprintf("%s:%d", b.host, b.port)
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		b.logger.Errorf("Failed to start %s UDP listener: %v", name, err)
		return
	}
	b.udpConn = conn
	b.logger.Infof("%s UDP listener started on %s", name, addr)
	b.wg.Add(1)
	defer b.wg.Done()

	buffer := make([]byte, udpBufferSize)
	for {
		select {
		case <-b.stopCh:
			return
		default:
		}
		conn.SetReadDeadline(time.Now().Add(time.Second))
		n, sender, err := conn.ReadFrom(buffer)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			if strings.Contains(err.Error(), "use of closed network connection") {
				return
			}
			b.logger.Errorf("%s UDP read error: %v", name, err)
			continue
		}
		// A zero-length datagram is still an event; the fallback tier
		// gives it the guaranteed field set.
		raw := string(buffer[:n])
		senderIP := hostOnly(sender.String())
		b.logger.Debugf("%s UDP datagram from %s (%d bytes)", name, sender, n)

		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			b.process(raw, senderIP, "udp", name+" UDP")
		}()
	}
}

// StartTCP runs the TCP accept loop with a bounded connection pool.
func (b *BaseListener) StartTCP(name string) {
	addr := fmt.Sprintf("%s:%d", b.host, b.port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		b.logger.Errorf("Failed to start %s TCP listener: %v", name, err)
		return
	}
	b.tcpListener = listener
	b.logger.Infof("%s TCP listener started on %s (max connections: %d)", name, addr, b.maxConnections)
	b.wg.Add(1)
	defer b.wg.Done()

	for {
		select {
		case <-b.stopCh:
			return
		default:
		}
		conn, err := listener.Accept()
		if err != nil {
			if strings.Contains(err.Error(), "use of closed network connection") {
				return
			}
			b.logger.Errorf("%s TCP accept error: %v", name, err)
			continue
		}

		ip := hostOnly(conn.RemoteAddr().String())

		b.ipConnectionsMutex.RLock()
		ipConnCount := b.ipConnections[ip]
		b.ipConnectionsMutex.RUnlock()

		if ipConnCount >= b.maxConnectionsPerIP {
			b.logger.Warnf("%s per-IP connection limit exceeded for %s (%d/%d), rejecting connection",
				name, ip, ipConnCount, b.maxConnectionsPerIP)
			metrics.TCPConnectionsRejected.Inc()
			conn.Close()
			continue
		}

		select {
		case b.connSemaphore <- struct{}{}:
			b.ipConnectionsMutex.Lock()
			b.ipConnections[ip]++
			b.ipConnectionsMutex.Unlock()

			metrics.TCPConnectionsActive.Inc()
			b.wg.Add(1)
			go b.handleTCPConnection(conn, name, ip)
		default:
			b.logger.Warnf("%s TCP connection pool full (%d/%d), rejecting connection from %s",
				name, b.maxConnections, b.maxConnections, conn.RemoteAddr())
			metrics.TCPConnectionsRejected.Inc()
			conn.Close()
		}
	}
}

// handleTCPConnection reads a connection's byte stream. Each chunk delivered
// by a single read is one candidate message; chunks are processed in order
// on this goroutine so same-connection events persist in receipt order.
func (b *BaseListener) handleTCPConnection(conn net.Conn, name, ip string) {
	defer conn.Close()
	defer b.wg.Done()
	defer func() {
		<-b.connSemaphore
		metrics.TCPConnectionsActive.Dec()
	}()
	defer func() {
		b.ipConnectionsMutex.Lock()
		if b.ipConnections[ip] > 0 {
			b.ipConnections[ip]--
		}
		if b.ipConnections[ip] == 0 {
			delete(b.ipConnections, ip)
		}
		b.ipConnectionsMutex.Unlock()
	}()

	b.logger.Debugf("%s TCP connection opened from %s", name, conn.RemoteAddr())

	buffer := make([]byte, udpBufferSize)
	for {
		conn.SetReadDeadline(time.Now().Add(tcpReadTimeout))
		n, err := conn.Read(buffer)
		if n > 0 {
			b.process(string(buffer[:n]), ip, "tcp", name+" TCP")
		}
		if err != nil {
			// A broken connection just stops producing events.
			if !errors.Is(err, io.EOF) && !strings.Contains(err.Error(), "use of closed network connection") {
				b.logger.Debugf("%s TCP connection from %s closed: %v", name, conn.RemoteAddr(), err)
			}
			return
		}
		select {
		case <-b.stopCh:
			return
		default:
		}
	}
}

// process feeds one raw message through the ingestion pipeline. Failures are
// logged and absorbed: a bad message must never crash the listener.
func (b *BaseListener) process(raw, senderIP, channel, name string) {
	if !b.limiter.Allow() {
		b.logger.Warnf("Rate limit exceeded for %s, dropping message", name)
		return
	}
	// No reply channel exists on these transports; the outcome is
	// observable only via logs and the store.
	if _, err := b.ingestor.Ingest(context.Background(), raw, senderIP, channel); err != nil {
		b.logger.Warnf("%s message from %s was not persisted: %v", name, senderIP, err)
	}
}

// Stop stops the listener and waits for in-flight handlers.
func (b *BaseListener) Stop() {
	close(b.stopCh)
	if b.udpConn != nil {
		b.udpConn.Close()
	}
	if b.tcpListener != nil {
		b.tcpListener.Close()
	}
	b.wg.Wait()
}

// hostOnly strips the port from a network address.
func hostOnly(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
