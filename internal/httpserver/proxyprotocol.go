package httpserver

import (
	"bufio"
	"net"
	"sync"
	"time"

	proxyproto "github.com/pires/go-proxyproto"
)

// proxyHeaderTimeout bounds how long a connection may take to send its
// PROXY header.
const proxyHeaderTimeout = 5 * time.Second

type proxyListener struct {
	net.Listener
	headerTimeout time.Duration
}

// NewProxyListener wraps l so accepted connections report the addresses
// carried in a PROXY protocol v1 or v2 header. Connections without a header
// are passed through unchanged. The header is parsed on first use, in the
// connection's own goroutine, so a slow client never blocks Accept.
func NewProxyListener(l net.Listener, headerTimeout time.Duration) net.Listener {
	return &proxyListener{Listener: l, headerTimeout: headerTimeout}
}

func (l *proxyListener) Accept() (net.Conn, error) {
	conn, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}

	return &proxyConn{
		Conn:          conn,
		reader:        bufio.NewReader(conn),
		headerTimeout: l.headerTimeout,
	}, nil
}

type proxyConn struct {
	net.Conn
	reader        *bufio.Reader
	headerTimeout time.Duration

	once       sync.Once
	initErr    error
	localAddr  net.Addr
	remoteAddr net.Addr
}

func (c *proxyConn) init() {
	c.once.Do(func() {
		if c.headerTimeout > 0 {
			_ = c.Conn.SetReadDeadline(time.Now().Add(c.headerTimeout))
			defer c.Conn.SetReadDeadline(time.Time{})
		}

		header, err := proxyproto.Read(c.reader)
		switch err {
		case proxyproto.ErrNoProxyProtocol, proxyproto.ErrInvalidLength:
			return
		case nil:
			c.localAddr = tcpAddr(header.DestinationAddress, header.DestinationPort)
			c.remoteAddr = tcpAddr(header.SourceAddress, header.SourcePort)
		default:
			c.initErr = err
		}
	})
}

func (c *proxyConn) Read(b []byte) (int, error) {
	c.init()
	if c.initErr != nil {
		return 0, c.initErr
	}
	return c.reader.Read(b)
}

func (c *proxyConn) LocalAddr() net.Addr {
	c.init()
	if c.localAddr == nil {
		return c.Conn.LocalAddr()
	}
	return c.localAddr
}

func (c *proxyConn) RemoteAddr() net.Addr {
	c.init()
	if c.remoteAddr == nil {
		return c.Conn.RemoteAddr()
	}
	return c.remoteAddr
}

func tcpAddr(ip net.IP, port uint16) net.Addr {
	return &net.TCPAddr{IP: ip, Port: int(port)}
}
