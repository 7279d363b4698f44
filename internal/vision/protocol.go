package vision

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// maxMessageSize bounds a single worker message.
const maxMessageSize = 32 << 20

// request is sent to the worker on stdin.
type request struct {
	FrameData []byte      `msgpack:"frame_data"`
	Width     int         `msgpack:"width"`
	Height    int         `msgpack:"height"`
	Meta      requestMeta `msgpack:"meta"`
}

type requestMeta struct {
	Seq       uint64 `msgpack:"seq"`
	Timestamp string `msgpack:"timestamp"`
	TraceID   string `msgpack:"trace_id"`
}

// response is read from the worker's stdout.
type response struct {
	Emotion string             `msgpack:"emotion"`
	Face    *Box               `msgpack:"face"`
	Scores  map[string]float64 `msgpack:"scores"`
	Seq     uint64             `msgpack:"seq"`
	Error   string             `msgpack:"error"`
	Timing  responseTiming     `msgpack:"timing"`
}

type responseTiming struct {
	TotalMS float64 `msgpack:"total_ms"`
}

// writeMessage writes v as MsgPack with a 4-byte big-endian length prefix.
func writeMessage(w io.Writer, v any) error {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling msgpack: %w", err)
	}
	if len(data) > maxMessageSize {
		return fmt.Errorf("message of %d bytes exceeds limit %d", len(data), maxMessageSize)
	}

	buf := make([]byte, 4+len(data))
	binary.BigEndian.PutUint32(buf, uint32(len(data)))
	copy(buf[4:], data)

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("writing message: %w", err)
	}
	return nil
}

// readMessage reads one length-prefixed MsgPack message into v.
func readMessage(r io.Reader, v any) error {
	var lengthBuf [4]byte
	if _, err := io.ReadFull(r, lengthBuf[:]); err != nil {
		return fmt.Errorf("reading length prefix: %w", err)
	}

	n := binary.BigEndian.Uint32(lengthBuf[:])
	if n > maxMessageSize {
		return fmt.Errorf("message of %d bytes exceeds limit %d", n, maxMessageSize)
	}

	data := make([]byte, n)
	if _, err := io.ReadFull(r, data); err != nil {
		return fmt.Errorf("reading message body: %w", err)
	}

	if err := msgpack.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshaling msgpack: %w", err)
	}
	return nil
}
