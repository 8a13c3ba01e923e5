package chat

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
)

const (
	linePrefix   = "data: "
	doneSentinel = "[DONE]"
)

// Assembler reconstructs an assistant answer from a chunked event stream.
// Chunks arrive at arbitrary byte boundaries; the assembler buffers the
// trailing partial line between chunks and emits only complete records.
// Lines without the recognized prefix are dropped, and the sentinel record
// ends the stream: nothing after it is emitted.
type Assembler struct {
	buf  []byte
	done bool
}

// Feed appends a chunk and returns the complete text fragments it unlocked,
// in arrival order.
func (a *Assembler) Feed(chunk []byte) []string {
	if a.done {
		return nil
	}
	a.buf = append(a.buf, chunk...)

	var fragments []string
	for {
		i := bytes.IndexByte(a.buf, '\n')
		if i < 0 {
			break
		}
		line := string(a.buf[:i])
		a.buf = a.buf[i+1:]

		data, ok := strings.CutPrefix(line, linePrefix)
		if !ok {
			continue
		}
		if data == doneSentinel {
			a.done = true
			a.buf = nil
			break
		}
		fragments = append(fragments, data)
	}
	return fragments
}

// Done reports whether the completion sentinel has been seen.
func (a *Assembler) Done() bool {
	return a.done
}

// Assemble drains r through an Assembler, calling apply for each fragment in
// order. It returns nil on the sentinel or on end of input, and the transport
// error otherwise.
func Assemble(ctx context.Context, r io.Reader, apply func(fragment string)) error {
	a := &Assembler{}
	buf := make([]byte, 4096)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := r.Read(buf)
		if n > 0 {
			for _, fragment := range a.Feed(buf[:n]) {
				apply(fragment)
			}
			if a.Done() {
				return nil
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading stream: %w", err)
		}
	}
}
