// Package protocol implements the length-prefixed framing used between every
// pair of platform components: a 4-byte big-endian length followed by exactly
// that many bytes of UTF-8 JSON. File payloads ride on the same connection as
// raw chunked bytes after a framed FILE_METADATA record.
package protocol

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

const (
	// MaxFrameSize is the largest JSON body a frame may carry.
	MaxFrameSize = 65536

	// FrameHeaderSize is the length prefix width.
	FrameHeaderSize = 4

	// FileChunkSize is the read/write unit for raw file streaming.
	FileChunkSize = 8192
)

// ErrFrameTooLarge is returned when a message body exceeds MaxFrameSize.
var ErrFrameTooLarge = errors.New("protocol: frame too large")

// WriteMessage marshals v to JSON and writes it as one frame.
func WriteMessage(w io.Writer, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling message: %w", err)
	}
	if len(body) > MaxFrameSize {
		return fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, len(body), MaxFrameSize)
	}

	buf := make([]byte, FrameHeaderSize+len(body))
	binary.BigEndian.PutUint32(buf[:FrameHeaderSize], uint32(len(body)))
	copy(buf[FrameHeaderSize:], body)

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("writing frame: %w", err)
	}
	return nil
}

// ReadMessage reads one frame and returns its raw JSON body.
// A clean close on the frame boundary surfaces as io.EOF so callers can
// distinguish "peer went away" from a protocol violation.
func ReadMessage(r io.Reader) (json.RawMessage, error) {
	var header [FrameHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("reading frame header: %w", err)
	}

	length := int(binary.BigEndian.Uint32(header[:]))
	if length <= 0 || length > MaxFrameSize {
		return nil, fmt.Errorf("invalid frame length: %d", length)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("reading frame body: %w", err)
	}

	if !json.Valid(body) {
		return nil, fmt.Errorf("frame body is not valid JSON")
	}
	return body, nil
}

// ReadInto reads one frame and unmarshals it into v.
func ReadInto(r io.Reader, v any) error {
	body, err := ReadMessage(r)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("unmarshaling message: %w", err)
	}
	return nil
}
