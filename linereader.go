package serialplot

import "bytes"

// maxLineSize bounds a single line; longer lines are dropped whole.
const maxLineSize = 4096

type lineResult struct {
	line []byte
	err  error
}

// lineReader frames newline-terminated lines out of a Port. It is owned by
// the acquisition loop and not safe for concurrent use.
type lineReader struct {
	port     Port
	buf      []byte
	pending  []byte
	overflow bool
	ready    []lineResult
}

func newLineReader(p Port) *lineReader {
	return &lineReader{port: p, buf: readBufPool.Get()}
}

// ReadLine returns the next complete line without its terminator (a trailing
// CR is removed too). It performs at most one device read and returns
// ErrReadTimeout when that read did not complete a line, so callers regain
// control at least once per read timeout. Overlong lines yield ErrLineTooLong.
// Any other error comes from the device.
func (r *lineReader) ReadLine() ([]byte, error) {
	if res, ok := r.pop(); ok {
		return res.line, res.err
	}

	n, err := r.port.Read(r.buf)
	if err != nil {
		return nil, err
	}
	if n > 0 {
		r.feed(r.buf[:n])
	}
	if res, ok := r.pop(); ok {
		return res.line, res.err
	}
	return nil, ErrReadTimeout
}

func (r *lineReader) pop() (lineResult, bool) {
	if len(r.ready) == 0 {
		return lineResult{}, false
	}
	res := r.ready[0]
	r.ready = r.ready[1:]
	return res, true
}

func (r *lineReader) feed(chunk []byte) {
	for len(chunk) > 0 {
		idx := bytes.IndexByte(chunk, '\n')
		if idx == -1 {
			r.appendPending(chunk)
			return
		}
		r.appendPending(chunk[:idx])
		chunk = chunk[idx+1:]

		if r.overflow {
			r.ready = append(r.ready, lineResult{err: ErrLineTooLong})
		} else {
			line := bytes.TrimSuffix(r.pending, []byte{'\r'})
			r.ready = append(r.ready, lineResult{line: bytes.Clone(line)})
		}
		r.pending = r.pending[:0]
		r.overflow = false
	}
}

func (r *lineReader) appendPending(b []byte) {
	if r.overflow {
		return
	}
	if len(r.pending)+len(b) > maxLineSize {
		r.pending = r.pending[:0]
		r.overflow = true
		return
	}
	r.pending = append(r.pending, b...)
}

// release returns the read buffer to the pool.
func (r *lineReader) release() {
	if r.buf != nil {
		readBufPool.Put(r.buf)
		r.buf = nil
	}
}
