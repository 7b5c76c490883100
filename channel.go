package tfsm

import (
	"log/slog"
	"net"
	"time"
)

// maxDatagramSize is the largest packet UDPChannel will send or receive;
// larger messages are not supported. ChanChannel applies no size limit.
const maxDatagramSize = 2048

// Channel is a bidirectional, packet-oriented, non-blocking transport
// for opaque UTF-8 JSON datagrams. Send is best-effort: it returns false
// when the packet was not sent (UDPChannel: a socket write failure or an
// oversized packet; ChanChannel: a full buffer). Poll returns false whenever no datagram is
// currently available; that is not itself an error condition.
type Channel interface {
	Send(packet []byte) bool
	Poll() (packet []byte, ok bool)
	Close() error
}

// UDPChannel is the reference transport: a fixed local bind address and a
// fixed peer address, both host:port strings. The socket is opened in
// NewUDPChannel and released by Close; callers are responsible for
// calling Close on every exit path.
type UDPChannel struct {
	conn   *net.UDPConn
	peer   *net.UDPAddr
	logger *slog.Logger
}

// NewUDPChannel binds bindAddr and resolves peerAddr. The socket is open
// and ready to Send/Poll when this returns successfully.
func NewUDPChannel(bindAddr, peerAddr string) (*UDPChannel, error) {
	laddr, err := net.ResolveUDPAddr("udp", bindAddr)
	if err != nil {
		return nil, newTransportError(err)
	}
	raddr, err := net.ResolveUDPAddr("udp", peerAddr)
	if err != nil {
		return nil, newTransportError(err)
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, newTransportError(err)
	}
	return &UDPChannel{conn: conn, peer: raddr, logger: Logger}, nil
}

// Send writes packet to the fixed peer address. Oversized packets are
// rejected locally rather than handed to the kernel.
func (c *UDPChannel) Send(packet []byte) bool {
	if len(packet) > maxDatagramSize {
		c.logger.Warn("dropping oversized outbound datagram", "size", len(packet))
		return false
	}
	if _, err := c.conn.WriteToUDP(packet, c.peer); err != nil {
		c.logger.Warn("udp send failed", "error", newTransportError(err))
		return false
	}
	return true
}

// Poll makes one non-blocking attempt to read a datagram, implemented by
// giving the read a deadline a hair above zero rather than relying on
// platform-specific non-blocking socket flags.
func (c *UDPChannel) Poll() ([]byte, bool) {
	if err := c.conn.SetReadDeadline(time.Now().Add(time.Millisecond)); err != nil {
		c.logger.Warn("set read deadline failed", "error", newTransportError(err))
		return nil, false
	}
	buf := make([]byte, maxDatagramSize)
	n, _, err := c.conn.ReadFromUDP(buf)
	if err != nil {
		return nil, false
	}
	return buf[:n], true
}

// Close releases the underlying socket.
func (c *UDPChannel) Close() error {
	return c.conn.Close()
}

// ChanChannel is an in-memory Channel backed by two buffered Go channels,
// for tests and for embedding the engine in another Go process without a
// socket. It has no grounding in a specific retrieved file beyond being
// the obvious idiomatic Go analogue of a loopback transport (see
// DESIGN.md).
type ChanChannel struct {
	outbound chan []byte
	inbound  chan []byte
}

// NewChanChannel builds a ChanChannel with the given per-direction buffer
// size.
func NewChanChannel(bufSize int) *ChanChannel {
	return &ChanChannel{
		outbound: make(chan []byte, bufSize),
		inbound:  make(chan []byte, bufSize),
	}
}

// Send enqueues packet for a consumer reading Outbound; a full buffer is
// dropped rather than blocking the automaton.
func (c *ChanChannel) Send(packet []byte) bool {
	select {
	case c.outbound <- packet:
		return true
	default:
		return false
	}
}

// Poll returns the next packet injected via Inject, if any is buffered.
func (c *ChanChannel) Poll() ([]byte, bool) {
	select {
	case p := <-c.inbound:
		return p, true
	default:
		return nil, false
	}
}

// Close closes both underlying channels.
func (c *ChanChannel) Close() error {
	close(c.outbound)
	close(c.inbound)
	return nil
}

// Inject makes packet available to the next Poll, as if it had arrived
// from the peer.
func (c *ChanChannel) Inject(packet []byte) {
	c.inbound <- packet
}

// Outbound exposes the packets sent by the automaton, for assertions in
// tests.
func (c *ChanChannel) Outbound() <-chan []byte {
	return c.outbound
}
