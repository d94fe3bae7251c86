// Package transport carries simulator launches over QUIC. Both ends present
// self-signed Ed25519 certificates and every launch uses its own
// bidirectional stream.
package transport

import (
	"context"
	"crypto/ed25519"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/eigerco/warpsim/pkg/log"
)

// ProtocolID is the only ALPN protocol spoken.
const ProtocolID = "warpsim/1"

// MaxIdleTimeout defines the maximum duration a connection can be idle
// before timing out.
const MaxIdleTimeout = 5 * time.Minute

// StreamHandler serves one stream opened by a client.
type StreamHandler interface {
	HandleStream(ctx context.Context, stream quic.Stream, peer ed25519.PublicKey) error
}

// CertValidator performs TLS certificate validation and public key extraction
type CertValidator interface {
	ValidateCertificate(cert *x509.Certificate) error
	ExtractPublicKey(cert *x509.Certificate) (ed25519.PublicKey, error)
}

type Config struct {
	TLSCert       *tls.Certificate
	ListenAddr    string
	CertValidator CertValidator
	Handler       StreamHandler
}

// Transport is the server side: it accepts connections and hands each of
// their streams to the handler.
type Transport struct {
	config   Config
	listener *quic.Listener
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	mu    sync.Mutex
	conns map[*Conn]struct{}
}

func NewTransport(config Config) (*Transport, error) {
	switch {
	case config.TLSCert == nil:
		return nil, fmt.Errorf("%w: TLS certificate required", ErrMissingConfig)
	case config.CertValidator == nil:
		return nil, fmt.Errorf("%w: certificate validator required", ErrMissingConfig)
	case config.Handler == nil:
		return nil, fmt.Errorf("%w: stream handler required", ErrMissingConfig)
	}
	if err := config.CertValidator.ValidateCertificate(config.TLSCert.Leaf); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCertificate, err)
	}
	return &Transport{
		config: config,
		conns:  make(map[*Conn]struct{}),
	}, nil
}

func tlsConfig(cert *tls.Certificate, validator CertValidator) *tls.Config {
	verify := func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
		if len(rawCerts) == 0 {
			return fmt.Errorf("%w: no peer certificate provided", ErrInvalidCertificate)
		}
		c, err := x509.ParseCertificate(rawCerts[0])
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidCertificate, err)
		}
		if err := validator.ValidateCertificate(c); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidCertificate, err)
		}
		return nil
	}
	return &tls.Config{
		Certificates:          []tls.Certificate{*cert},
		NextProtos:            []string{ProtocolID},
		ClientAuth:            tls.RequireAnyClientCert,
		MinVersion:            tls.VersionTLS13,
		InsecureSkipVerify:    true,
		VerifyPeerCertificate: verify,
	}
}

func quicConfig() *quic.Config {
	return &quic.Config{
		MaxIdleTimeout:  MaxIdleTimeout,
		KeepAlivePeriod: MaxIdleTimeout / 3,
	}
}

// Start listens on the configured address and begins accepting
// connections.
func (t *Transport) Start() error {
	listener, err := quic.ListenAddr(t.config.ListenAddr, tlsConfig(t.config.TLSCert, t.config.CertValidator), quicConfig())
	if err != nil {
		return fmt.Errorf("%w: %w", ErrListenerFailed, err)
	}

	t.ctx, t.cancel = context.WithCancel(context.Background())
	t.listener = listener
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.acceptLoop()
	}()
	log.Network.Info().Stringer("addr", listener.Addr()).Msg("listening")
	return nil
}

// Addr is the bound listener address, useful when listening on port 0.
func (t *Transport) Addr() net.Addr {
	if t.listener == nil {
		return nil
	}
	return t.listener.Addr()
}

// Stop closes the listener and every connection and waits for in-flight
// handlers to return.
func (t *Transport) Stop() error {
	if t.listener == nil {
		return ErrNotStarted
	}
	t.cancel()

	t.mu.Lock()
	for conn := range t.conns {
		if err := conn.Close(); err != nil {
			log.Network.Debug().Err(err).Msg("close connection")
		}
	}
	t.conns = make(map[*Conn]struct{})
	t.mu.Unlock()

	err := t.listener.Close()
	t.wg.Wait()
	if err != nil {
		return fmt.Errorf("failed to close listener: %w", err)
	}
	return nil
}

func (t *Transport) acceptLoop() {
	for {
		qConn, err := t.listener.Accept(t.ctx)
		if err != nil {
			if t.ctx.Err() == nil && !errors.Is(err, quic.ErrServerClosed) {
				log.Network.Error().Err(err).Msg("failed to accept connection")
				continue
			}
			return
		}

		t.wg.Add(1)
		go func() {
			defer t.wg.Done()
			t.serveConnection(qConn)
		}()
	}
}

// serveConnection accepts streams until the connection goes away.
func (t *Transport) serveConnection(qConn quic.Connection) {
	peerKey, err := t.config.CertValidator.ExtractPublicKey(qConn.ConnectionState().TLS.PeerCertificates[0])
	if err != nil {
		_ = qConn.CloseWithError(0, err.Error())
		return
	}
	conn := newConn(t.ctx, qConn, peerKey)
	t.track(conn, true)
	defer t.track(conn, false)

	log.Network.Debug().Stringer("remote", qConn.RemoteAddr()).Hex("peer", peerKey[:8]).Msg("connection accepted")
	for {
		stream, err := conn.AcceptStream()
		if err != nil {
			return
		}
		t.wg.Add(1)
		go func() {
			defer t.wg.Done()
			defer stream.Close()
			if err := t.handle(conn.Context(), stream, peerKey); err != nil {
				log.Network.Error().Err(err).Hex("peer", peerKey[:8]).Msg("stream handler failed")
				stream.CancelRead(0)
			}
		}()
	}
}

// handle runs the handler and reports a panic in it as ErrHandlerPanic.
func (t *Transport) handle(ctx context.Context, stream quic.Stream, peer ed25519.PublicKey) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()
	return t.config.Handler.HandleStream(ctx, stream, peer)
}

func (t *Transport) track(conn *Conn, add bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if add {
		t.conns[conn] = struct{}{}
	} else {
		delete(t.conns, conn)
	}
}

// Dial connects to a server. The server's certificate must pass validator.
func Dial(ctx context.Context, addr string, cert *tls.Certificate, validator CertValidator) (*Conn, error) {
	qConn, err := quic.DialAddr(ctx, addr, tlsConfig(cert, validator), quicConfig())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDialFailed, err)
	}
	peerKey, err := validator.ExtractPublicKey(qConn.ConnectionState().TLS.PeerCertificates[0])
	if err != nil {
		_ = qConn.CloseWithError(0, err.Error())
		return nil, fmt.Errorf("%w: %w", ErrInvalidCertificate, err)
	}
	return newConn(context.Background(), qConn, peerKey), nil
}
