// Lifeline - Supervised Worker Host for Web Applications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lifeline

package control

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

// Channel carries control messages between the supervisor and the worker.
//
// Recv blocks until a message arrives. It returns io.EOF once the peer has
// closed its end, and an error wrapping ErrProtocolViolation for input
// outside the protocol. Send and Recv may be called from different
// goroutines.
type Channel interface {
	Send(m Message) error
	Recv() (Message, error)
	Close() error
}

// Inherited descriptor numbers. The supervisor passes the read end of its
// outbound pipe as fd 3 and the write end of its inbound pipe as fd 4.
const (
	WorkerReadFD  = 3
	WorkerWriteFD = 4

	// EnvControlFDs is set by the supervisor when fds 3 and 4 carry a
	// control channel.
	EnvControlFDs = "LIFELINE_CONTROL_FDS"
)

// maxLineSize bounds a single encoded message.
const maxLineSize = 4096

// Pipe is a Channel over a byte stream, one JSON object per line.
type Pipe struct {
	scanner *bufio.Scanner
	r       io.Closer
	w       io.WriteCloser

	wmu       sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// NewPipe builds a Channel that reads messages from r and writes them to w.
func NewPipe(r io.ReadCloser, w io.WriteCloser) *Pipe {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 256), maxLineSize)
	return &Pipe{scanner: scanner, r: r, w: w}
}

// Inherited returns the control channel the supervisor passed to this
// process, or nil if the process was started without one.
func Inherited() *Pipe {
	if os.Getenv(EnvControlFDs) == "" {
		return nil
	}
	r := os.NewFile(WorkerReadFD, "lifeline-control-r")
	w := os.NewFile(WorkerWriteFD, "lifeline-control-w")
	if r == nil || w == nil {
		return nil
	}
	return NewPipe(r, w)
}

// Send writes m followed by a newline.
func (p *Pipe) Send(m Message) error {
	data, err := Encode(m)
	if err != nil {
		return fmt.Errorf("encode %s: %w", m.Action(), err)
	}
	data = append(data, '\n')

	p.wmu.Lock()
	defer p.wmu.Unlock()
	if _, err := p.w.Write(data); err != nil {
		return fmt.Errorf("send %s: %w", m.Action(), err)
	}
	return nil
}

// Recv reads the next line and decodes it. Blank lines are skipped.
func (p *Pipe) Recv() (Message, error) {
	for p.scanner.Scan() {
		line := p.scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		return Decode(line)
	}
	if err := p.scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return nil, fmt.Errorf("%w: %v", ErrProtocolViolation, err)
		}
		return nil, err
	}
	return nil, io.EOF
}

// Close closes both directions. It is safe to call more than once.
func (p *Pipe) Close() error {
	p.closeOnce.Do(func() {
		p.closeErr = errors.Join(p.w.Close(), p.r.Close())
	})
	return p.closeErr
}

// Local is an in-process Channel end created by NewPair.
type Local struct {
	in   <-chan Message
	out  chan<- Message
	done chan struct{}
	peer *Local

	closeOnce sync.Once
}

// ErrClosed is returned by Send on a closed Local channel.
var ErrClosed = errors.New("control channel closed")

// NewPair returns two connected in-process channel ends. Each direction
// buffers up to buffer messages before Send blocks.
func NewPair(buffer int) (a, b *Local) {
	ab := make(chan Message, buffer)
	ba := make(chan Message, buffer)
	a = &Local{in: ba, out: ab, done: make(chan struct{})}
	b = &Local{in: ab, out: ba, done: make(chan struct{})}
	a.peer, b.peer = b, a
	return a, b
}

// Send delivers m to the peer.
func (l *Local) Send(m Message) error {
	select {
	case <-l.done:
		return ErrClosed
	case <-l.peer.done:
		return ErrClosed
	default:
	}
	select {
	case l.out <- m:
		return nil
	case <-l.done:
		return ErrClosed
	case <-l.peer.done:
		return ErrClosed
	}
}

// Recv returns the next message, or io.EOF once either end is closed and
// no buffered messages remain.
func (l *Local) Recv() (Message, error) {
	select {
	case m := <-l.in:
		return m, nil
	case <-l.done:
	case <-l.peer.done:
	}
	select {
	case m := <-l.in:
		return m, nil
	default:
		return nil, io.EOF
	}
}

// Close closes this end.
func (l *Local) Close() error {
	l.closeOnce.Do(func() { close(l.done) })
	return nil
}
