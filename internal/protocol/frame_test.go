package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	in := map[string]any{"command": "login", "username": "alice"}
	require.NoError(t, WriteMessage(&buf, in))

	raw, err := ReadMessage(&buf)
	require.NoError(t, err)
	assert.JSONEq(t, `{"command":"login","username":"alice"}`, string(raw))
}

func TestReadInto(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteMessage(&buf, map[string]int{"port": 10100}))

	var out struct {
		Port int `json:"port"`
	}
	require.NoError(t, ReadInto(&buf, &out))
	assert.Equal(t, 10100, out.Port)
}

func TestWriteMessageTooLarge(t *testing.T) {
	var buf bytes.Buffer
	big := map[string]string{"data": strings.Repeat("x", MaxFrameSize)}
	err := WriteMessage(&buf, big)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFrameTooLarge))
	assert.Zero(t, buf.Len(), "oversized frame must not be partially written")
}

func TestReadMessageCleanCloseIsEOF(t *testing.T) {
	_, err := ReadMessage(bytes.NewReader(nil))
	assert.Equal(t, io.EOF, err)
}

func TestReadMessageRejectsBadLength(t *testing.T) {
	for _, length := range []uint32{0, MaxFrameSize + 1, 1 << 30} {
		var hdr [FrameHeaderSize]byte
		binary.BigEndian.PutUint32(hdr[:], length)
		_, err := ReadMessage(bytes.NewReader(hdr[:]))
		require.Error(t, err, "length %d", length)
		assert.NotEqual(t, io.EOF, err)
	}
}

func TestReadMessageTruncatedBody(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteMessage(&buf, map[string]string{"k": "v"}))

	truncated := buf.Bytes()[:buf.Len()-2]
	_, err := ReadMessage(bytes.NewReader(truncated))
	require.Error(t, err)
	assert.NotEqual(t, io.EOF, err)
}

func TestReadMessageRejectsInvalidJSON(t *testing.T) {
	body := []byte("{not json")
	var buf bytes.Buffer
	var hdr [FrameHeaderSize]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(body)))
	buf.Write(hdr[:])
	buf.Write(body)

	_, err := ReadMessage(&buf)
	require.Error(t, err)
}

func TestReadMessageSequential(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteMessage(&buf, map[string]int{"n": 1}))
	require.NoError(t, WriteMessage(&buf, map[string]int{"n": 2}))

	for want := 1; want <= 2; want++ {
		var out struct {
			N int `json:"n"`
		}
		require.NoError(t, ReadInto(&buf, &out))
		assert.Equal(t, want, out.N)
	}
	_, err := ReadMessage(&buf)
	assert.Equal(t, io.EOF, err)
}
