// Copyright 2026 The Chorus Authors
// SPDX-License-Identifier: Apache-2.0

package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"unicode/utf8"
)

// chunkQueue buffers received chunks between the incoming manager,
// which appends on the carrier's dispatch goroutine, and the reader,
// which consumes on the handler's goroutine. Chunks are delivered at
// most once. The queue is unbounded: the dispatch loop must never
// block behind a slow handler, because every stream on the carrier
// shares it.
type chunkQueue struct {
	mu      sync.Mutex
	chunks  [][]byte
	done    bool
	failure error

	// arrived wakes a blocked next when a chunk is appended.
	// Capacity one: duplicate signals collapse and the loop in next
	// tolerates spurious wakeups.
	arrived chan struct{}

	// ended is closed when the stream ends, waking every waiter.
	ended chan struct{}
}

func newChunkQueue() *chunkQueue {
	return &chunkQueue{
		arrived: make(chan struct{}, 1),
		ended:   make(chan struct{}),
	}
}

func (q *chunkQueue) append(data []byte) {
	q.mu.Lock()
	if q.done {
		q.mu.Unlock()
		return
	}
	q.chunks = append(q.chunks, data)
	q.mu.Unlock()

	select {
	case q.arrived <- struct{}{}:
	default:
	}
}

// finish ends the queue. A nil failure means normal end: buffered
// chunks stay readable and next reports io.EOF once they drain. A
// non-nil failure is terminal immediately — content of a stream that
// ended abnormally is not delivered. The first finish wins.
func (q *chunkQueue) finish(failure error) {
	q.mu.Lock()
	if q.done {
		q.mu.Unlock()
		return
	}
	q.done = true
	q.failure = failure
	q.mu.Unlock()
	close(q.ended)
}

// next returns the next buffered chunk, blocking until one arrives,
// the stream ends, or ctx is done.
func (q *chunkQueue) next(ctx context.Context) ([]byte, error) {
	for {
		q.mu.Lock()
		if q.failure != nil {
			failure := q.failure
			q.mu.Unlock()
			return nil, failure
		}
		if len(q.chunks) > 0 {
			chunk := q.chunks[0]
			q.chunks = q.chunks[1:]
			q.mu.Unlock()
			return chunk, nil
		}
		done := q.done
		q.mu.Unlock()

		if done {
			return nil, io.EOF
		}

		select {
		case <-q.arrived:
		case <-q.ended:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// ByteReader consumes one inbound byte stream. The incoming manager
// hands a reader to the topic handler when the stream's header
// arrives; content follows as the sender produces it.
//
// Readers are pull-based: Next blocks until content is available.
// Stream-level failures — abnormal closure, a short stream with a
// declared length, manager teardown — latch, and every call after
// the first failure returns the same error.
type ByteReader struct {
	info  Header
	queue *chunkQueue
}

func newByteReader(info Header, queue *chunkQueue) *ByteReader {
	return &ByteReader{info: info, queue: queue}
}

// Info returns the header that opened the stream.
func (r *ByteReader) Info() Header {
	return r.info
}

// Next returns the next chunk of content in arrival order. It
// returns io.EOF after a normally closed stream is fully consumed.
// Context errors are returned as-is and do not affect the stream;
// the call can be retried.
func (r *ByteReader) Next(ctx context.Context) ([]byte, error) {
	return r.queue.next(ctx)
}

// ReadAll consumes the stream to its end and returns the
// concatenated content. On error it returns the content read so far
// along with the error.
func (r *ByteReader) ReadAll(ctx context.Context) ([]byte, error) {
	var all []byte
	for {
		chunk, err := r.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return all, nil
			}
			return all, err
		}
		all = append(all, chunk...)
	}
}

// TextReader consumes one inbound text stream, decoding UTF-8 as it
// goes. Chunk boundaries are byte boundaries, so a multi-byte rune
// may arrive split across two chunks; the reader buffers the
// incomplete tail and prepends it to the next chunk. Content that is
// not valid UTF-8 fails the reader with ErrDecodeFailed, as does a
// stream that ends in the middle of a rune.
type TextReader struct {
	info  Header
	queue *chunkQueue

	// mu serializes Next calls: tail and failed are decode state
	// carried across calls.
	mu     sync.Mutex
	tail   []byte
	failed error
}

func newTextReader(info Header, queue *chunkQueue) *TextReader {
	return &TextReader{info: info, queue: queue}
}

// Info returns the header that opened the stream.
func (r *TextReader) Info() Header {
	return r.info
}

// Next returns the next decoded span of text, always at least one
// rune. It blocks across chunk boundaries when a rune is split, and
// returns io.EOF after a normally closed stream is fully consumed.
// Context errors are returned as-is and can be retried; all other
// errors latch.
func (r *TextReader) Next(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failed != nil {
		return "", r.failed
	}
	for {
		chunk, err := r.queue.next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) && len(r.tail) > 0 {
				r.failed = fmt.Errorf("stream ended inside a multi-byte rune: %w", ErrDecodeFailed)
				return "", r.failed
			}
			return "", err
		}

		data := chunk
		if len(r.tail) > 0 {
			data = append(r.tail, chunk...)
		}
		cut := len(data) - incompleteTailLength(data)
		text, rest := data[:cut], data[cut:]
		if !utf8.Valid(text) {
			r.failed = fmt.Errorf("stream content is not valid UTF-8: %w", ErrDecodeFailed)
			return "", r.failed
		}
		r.tail = rest
		if len(text) > 0 {
			return string(text), nil
		}
		// The chunk held only the start of a rune; wait for the rest.
	}
}

// ReadAll consumes the stream to its end and returns the decoded
// text. On error it returns the text read so far along with the
// error.
func (r *TextReader) ReadAll(ctx context.Context) (string, error) {
	var builder strings.Builder
	for {
		text, err := r.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return builder.String(), nil
			}
			return builder.String(), err
		}
		builder.WriteString(text)
	}
}

// incompleteTailLength returns how many bytes at the end of data are
// the prefix of a multi-byte rune whose remaining bytes have not
// arrived. Zero means data ends on a rune boundary. Bytes that can
// never complete a rune also report zero; utf8.Valid rejects those.
func incompleteTailLength(data []byte) int {
	for back := 1; back <= utf8.UTFMax-1 && back <= len(data); back++ {
		b := data[len(data)-back]
		if b < utf8.RuneSelf {
			// ASCII byte: a rune boundary.
			return 0
		}
		if b&0xC0 == 0xC0 {
			// Lead byte of a multi-byte sequence.
			if runeLength(b) > back {
				return back
			}
			return 0
		}
		// Continuation byte: keep scanning backwards.
	}
	return 0
}

// runeLength returns the sequence length a UTF-8 lead byte declares.
func runeLength(lead byte) int {
	switch {
	case lead&0xE0 == 0xC0:
		return 2
	case lead&0xF0 == 0xE0:
		return 3
	case lead&0xF8 == 0xF0:
		return 4
	default:
		// Not a valid lead byte; treated as a complete (invalid)
		// sequence so validation rejects it.
		return 1
	}
}
