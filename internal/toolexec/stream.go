package toolexec

import (
	"bytes"
	"strings"
)

// cappedBuffer keeps at most limit bytes and remembers whether anything was
// dropped. Writes never fail so the child process is not disturbed by a full
// buffer.
type cappedBuffer struct {
	buf       bytes.Buffer
	limit     int64
	truncated bool
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	room := b.limit - int64(b.buf.Len())
	if room <= 0 {
		if len(p) > 0 {
			b.truncated = true
		}
		return len(p), nil
	}
	if int64(len(p)) > room {
		b.buf.Write(p[:room])
		b.truncated = true
		return len(p), nil
	}
	b.buf.Write(p)
	return len(p), nil
}

func (b *cappedBuffer) Bytes() []byte { return b.buf.Bytes() }

// maxPendingLine bounds how much of an unterminated line is held back.
const maxPendingLine = 64 * 1024

// lineWriter forwards writes to an underlying buffer and calls a callback
// for each complete line.
type lineWriter struct {
	stream   string
	callback func(stream string, line string)
	buffer   *cappedBuffer
	pending  []byte
}

func (w *lineWriter) Write(p []byte) (n int, err error) {
	if w.buffer != nil {
		_, _ = w.buffer.Write(p)
	}
	if w.callback == nil {
		return len(p), nil
	}

	w.pending = append(w.pending, p...)

	// Progress output from tools like yt-dlp rewrites the same console line
	// with \r, so both \r and \n end a line.
	for {
		idx := bytes.IndexAny(w.pending, "\r\n")
		if idx < 0 {
			break
		}

		line := string(w.pending[:idx])

		consume := 1
		if w.pending[idx] == '\r' && idx+1 < len(w.pending) && w.pending[idx+1] == '\n' {
			consume = 2
		}
		w.pending = w.pending[idx+consume:]

		w.emit(line)
	}

	if len(w.pending) > maxPendingLine {
		w.emit(string(w.pending))
		w.pending = w.pending[:0]
	}

	return len(p), nil
}

// Flush emits a trailing line that was never terminated.
func (w *lineWriter) Flush() {
	if len(w.pending) == 0 {
		return
	}
	w.emit(string(w.pending))
	w.pending = w.pending[:0]
}

func (w *lineWriter) emit(line string) {
	if trimmed := strings.TrimSpace(line); trimmed != "" {
		w.callback(w.stream, trimmed)
	}
}
