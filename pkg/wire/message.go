package wire

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
)

// MaxMessageSize bounds the content of one framed message.
const MaxMessageSize = 64 << 20

// WriteMessage writes content framed as:
//   - 4 bytes: content size as little-endian uint32
//   - N bytes: content itself
//
// It returns ctx.Err() if the context is cancelled before the write
// completes; the write itself keeps running in the background.
func WriteMessage(ctx context.Context, w io.Writer, content []byte) error {
	if len(content) > MaxMessageSize {
		return fmt.Errorf("%w: message of %d bytes", ErrTooLarge, len(content))
	}
	done := make(chan error, 1)
	go func() {
		frame := binary.LittleEndian.AppendUint32(make([]byte, 0, 4+len(content)), uint32(len(content)))
		frame = append(frame, content...)
		if _, err := w.Write(frame); err != nil {
			done <- fmt.Errorf("failed to write message: %w", err)
			return
		}
		done <- nil
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ReadMessage reads one message written by WriteMessage.
func ReadMessage(ctx context.Context, r io.Reader) ([]byte, error) {
	type result struct {
		content []byte
		err     error
	}
	done := make(chan result, 1)

	go func() {
		var size uint32
		if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
			done <- result{err: fmt.Errorf("failed to read message size: %w", err)}
			return
		}
		if size > MaxMessageSize {
			done <- result{err: fmt.Errorf("%w: message of %d bytes", ErrTooLarge, size)}
			return
		}
		content := make([]byte, size)
		if _, err := io.ReadFull(r, content); err != nil {
			done <- result{err: fmt.Errorf("failed to read message content: %w", err)}
			return
		}
		done <- result{content: content}
	}()

	select {
	case res := <-done:
		return res.content, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Send encodes v and writes it as one message.
func Send(ctx context.Context, w io.Writer, v any) error {
	b, err := Marshal(v)
	if err != nil {
		return err
	}
	return WriteMessage(ctx, w, b)
}

// Receive reads one message and decodes it into dst.
func Receive(ctx context.Context, r io.Reader, dst any) error {
	b, err := ReadMessage(ctx, r)
	if err != nil {
		return err
	}
	return Unmarshal(b, dst)
}
