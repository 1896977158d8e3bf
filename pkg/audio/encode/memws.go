package encode

import (
	"errors"
	"io"
)

// memWriteSeeker is an in-memory io.WriteSeeker. The WAV encoder seeks back
// to patch chunk sizes once the data length is known.
type memWriteSeeker struct {
	buf []byte
	pos int
}

func (m *memWriteSeeker) Write(p []byte) (int, error) {
	if end := m.pos + len(p); end > len(m.buf) {
		if end > cap(m.buf) {
			grown := make([]byte, end, max(end, 2*cap(m.buf)))
			copy(grown, m.buf)
			m.buf = grown
		} else {
			m.buf = m.buf[:end]
		}
	}
	n := copy(m.buf[m.pos:], p)
	m.pos += n
	return n, nil
}

func (m *memWriteSeeker) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(m.pos) + offset
	case io.SeekEnd:
		abs = int64(len(m.buf)) + offset
	default:
		return 0, errors.New("memWriteSeeker: invalid whence")
	}
	if abs < 0 {
		return 0, errors.New("memWriteSeeker: negative position")
	}
	m.pos = int(abs)
	return abs, nil
}

func (m *memWriteSeeker) Bytes() []byte { return m.buf }
