// Package stream holds testify doubles for QUIC streams and the transport's
// stream handler.
package stream

import (
	"context"
	"crypto/ed25519"
	"time"

	"github.com/quic-go/quic-go"
	"github.com/stretchr/testify/mock"
)

// MockQuicStream records Read, Write and Close. The remaining quic.Stream
// methods are inert.
type MockQuicStream struct {
	mock.Mock
}

func NewMockQuicStream() *MockQuicStream {
	return &MockQuicStream{}
}

func (m *MockQuicStream) Read(p []byte) (int, error) {
	args := m.Called(p)
	return args.Int(0), args.Error(1)
}

func (m *MockQuicStream) Write(p []byte) (int, error) {
	args := m.Called(p)
	return args.Int(0), args.Error(1)
}

func (m *MockQuicStream) Close() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockQuicStream) CancelRead(quic.StreamErrorCode)  {}
func (m *MockQuicStream) CancelWrite(quic.StreamErrorCode) {}
func (m *MockQuicStream) SetReadDeadline(time.Time) error  { return nil }
func (m *MockQuicStream) SetWriteDeadline(time.Time) error { return nil }
func (m *MockQuicStream) SetDeadline(time.Time) error      { return nil }
func (m *MockQuicStream) StreamID() quic.StreamID          { return 0 }
func (m *MockQuicStream) Context() context.Context         { return context.Background() }

// MockStreamHandler stands in for transport.StreamHandler.
type MockStreamHandler struct {
	mock.Mock
}

func NewMockStreamHandler() *MockStreamHandler {
	return &MockStreamHandler{}
}

func (m *MockStreamHandler) HandleStream(ctx context.Context, stream quic.Stream, peerKey ed25519.PublicKey) error {
	args := m.Called(ctx, stream, peerKey)
	return args.Error(0)
}
