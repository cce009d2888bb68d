package dedup

import (
	"bufio"
	"errors"
	"io"
)

// lineReader yields lines with their terminators. Lines longer than the
// bufio buffer are assembled in long.
type lineReader struct {
	br   *bufio.Reader
	long []byte
}

func newLineReader(size int) *lineReader {
	return &lineReader{br: bufio.NewReaderSize(nil, size)}
}

func (lr *lineReader) reset(r io.Reader) {
	lr.br.Reset(r)
}

// next returns the next line including its '\n', if any. The slice is only
// valid until the next call. A final unterminated line is returned with a nil
// error; io.EOF is returned once nothing is left.
func (lr *lineReader) next() ([]byte, error) {
	line, err := lr.br.ReadSlice('\n')
	switch {
	case err == nil:
		return line, nil
	case errors.Is(err, bufio.ErrBufferFull):
		return lr.readLong(line)
	case errors.Is(err, io.EOF):
		if len(line) > 0 {
			return line, nil
		}
		return nil, io.EOF
	default:
		return nil, err
	}
}

func (lr *lineReader) readLong(head []byte) ([]byte, error) {
	lr.long = append(lr.long[:0], head...)
	for {
		part, err := lr.br.ReadSlice('\n')
		lr.long = append(lr.long, part...)
		switch {
		case err == nil, errors.Is(err, io.EOF):
			return lr.long, nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		default:
			return nil, err
		}
	}
}

// content strips a trailing "\n" or "\r\n".
func content(line []byte) []byte {
	n := len(line)
	if n == 0 || line[n-1] != '\n' {
		return line
	}
	n--
	if n > 0 && line[n-1] == '\r' {
		n--
	}
	return line[:n]
}
