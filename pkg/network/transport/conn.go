package transport

import (
	"context"
	"crypto/ed25519"
	"fmt"

	"github.com/quic-go/quic-go"
)

// Conn is a QUIC connection with an authenticated peer. Its context is
// cancelled when the connection is closed.
type Conn struct {
	QConn   quic.Connection
	peerKey ed25519.PublicKey
	ctx     context.Context
	cancel  context.CancelFunc
}

func newConn(parent context.Context, qConn quic.Connection, peerKey ed25519.PublicKey) *Conn {
	ctx, cancel := context.WithCancel(parent)
	return &Conn{
		QConn:   qConn,
		peerKey: peerKey,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// OpenStream opens a new bidirectional stream.
func (c *Conn) OpenStream(ctx context.Context) (quic.Stream, error) {
	stream, err := c.QConn.OpenStreamSync(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open QUIC stream: %w", err)
	}
	return stream, nil
}

// AcceptStream waits for the peer to open a stream.
func (c *Conn) AcceptStream() (quic.Stream, error) {
	stream, err := c.QConn.AcceptStream(c.ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to accept QUIC stream: %w", err)
	}
	return stream, nil
}

func (c *Conn) PeerKey() ed25519.PublicKey {
	return c.peerKey
}

func (c *Conn) Close() error {
	c.cancel()
	return c.QConn.CloseWithError(0, "")
}

func (c *Conn) Context() context.Context {
	return c.ctx
}
