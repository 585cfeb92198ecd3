package trace

import "net"

// Conn wraps a net.Conn and feeds byte counts into a Tracer. Drivers
// dial their own sockets and wrap them here before handing them to the
// protocol library, so tracing does not depend on library hooks.
type Conn struct {
	net.Conn
	tracer *Tracer
	state  string
}

func WrapConn(c net.Conn, t *Tracer) *Conn {
	return &Conn{Conn: c, tracer: t}
}

// WithState labels subsequent byte events, e.g. "tls-handshake".
func (c *Conn) WithState(state string) *Conn {
	c.state = state
	return c
}

func (c *Conn) Read(p []byte) (int, error) {
	n, err := c.Conn.Read(p)
	if n > 0 {
		c.tracer.ReceiveBytes(n, c.state)
	}
	return n, err
}

func (c *Conn) Write(p []byte) (int, error) {
	n, err := c.Conn.Write(p)
	if n > 0 {
		c.tracer.SendBytes(n, c.state)
	}
	return n, err
}
