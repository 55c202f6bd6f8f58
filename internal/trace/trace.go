// Package trace records every frame crossing the worker pool boundary into a zstd
// compressed stream, and reads such streams back.
//
// Each record is a direction byte followed by uvarints for the worker id, the time since
// the recorder started in microseconds, and the frame length, then the frame itself.
package trace

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"dither-studio/internal/workers"
)

// maxFrame bounds a frame length read back from a stream: 65535 x 65535 RGBA plus header.
const maxFrame = 4*65535*65535 + 64

var ErrCorrupt = errors.New("corrupt trace")

type Record struct {
	Direction workers.Direction
	WorkerID  int
	Elapsed   time.Duration
	Frame     []byte
}

type Recorder struct {
	mu      sync.Mutex
	enc     *zstd.Encoder
	closer  io.Closer
	start   time.Time
	scratch [3 * binary.MaxVarintLen64]byte
	records int
	err     error
}

// NewRecorder writes to w. Close flushes the stream but does not close w.
func NewRecorder(w io.Writer) (*Recorder, error) {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, fmt.Errorf("trace encoder: %w", err)
	}
	return &Recorder{enc: enc, start: time.Now()}, nil
}

// Create records into a new file at path, which Close also closes.
func Create(path string) (*Recorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create trace: %w", err)
	}
	r, err := NewRecorder(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	r.closer = f
	return r, nil
}

// Record has the workers.Tap signature. Write errors are kept and reported by Close.
func (r *Recorder) Record(dir workers.Direction, workerID int, frame []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.err != nil || r.enc == nil {
		return
	}
	header := r.scratch[:0]
	header = binary.AppendUvarint(header, uint64(workerID))
	header = binary.AppendUvarint(header, uint64(time.Since(r.start).Microseconds()))
	header = binary.AppendUvarint(header, uint64(len(frame)))

	if _, err := r.enc.Write([]byte{byte(dir)}); err != nil {
		r.err = err
		return
	}
	if _, err := r.enc.Write(header); err != nil {
		r.err = err
		return
	}
	if _, err := r.enc.Write(frame); err != nil {
		r.err = err
		return
	}
	r.records++
}

// Records is the number of frames written so far.
func (r *Recorder) Records() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.records
}

func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.enc == nil {
		return r.err
	}
	err := r.err
	if cerr := r.enc.Close(); err == nil {
		err = cerr
	}
	r.enc = nil
	if r.closer != nil {
		if cerr := r.closer.Close(); err == nil {
			err = cerr
		}
	}
	r.err = err
	return err
}

type Reader struct {
	dec *zstd.Decoder
	buf *bufio.Reader
}

func NewReader(r io.Reader) (*Reader, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("trace decoder: %w", err)
	}
	return &Reader{dec: dec, buf: bufio.NewReader(dec)}, nil
}

// Next returns io.EOF after the last complete record.
func (r *Reader) Next() (Record, error) {
	dir, err := r.buf.ReadByte()
	if err != nil {
		return Record{}, err
	}
	if workers.Direction(dir) != workers.Sent && workers.Direction(dir) != workers.Received {
		return Record{}, fmt.Errorf("direction %d: %w", dir, ErrCorrupt)
	}
	workerID, err := binary.ReadUvarint(r.buf)
	if err != nil {
		return Record{}, truncated(err)
	}
	elapsed, err := binary.ReadUvarint(r.buf)
	if err != nil {
		return Record{}, truncated(err)
	}
	size, err := binary.ReadUvarint(r.buf)
	if err != nil {
		return Record{}, truncated(err)
	}
	if size > maxFrame {
		return Record{}, fmt.Errorf("frame of %d bytes: %w", size, ErrCorrupt)
	}
	frame := make([]byte, size)
	if _, err := io.ReadFull(r.buf, frame); err != nil {
		return Record{}, truncated(err)
	}
	return Record{
		Direction: workers.Direction(dir),
		WorkerID:  int(workerID),
		Elapsed:   time.Duration(elapsed) * time.Microsecond,
		Frame:     frame,
	}, nil
}

func (r *Reader) Close() {
	r.dec.Close()
}

func truncated(err error) error {
	if errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return fmt.Errorf("%w: %w", ErrCorrupt, err)
}
