package services

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

// MaxLineBytes bounds one station file line. Longer lines are consumed and
// rejected without reading them into memory.
const MaxLineBytes = 64 * 1024

var errLineTooLong = errors.New("line exceeds maximum length")

// lineReader yields the lines of a station file with their terminator
// stripped, like bufio.ScanLines, but survives over-long lines.
type lineReader struct {
	r   *bufio.Reader
	max int
}

func newLineReader(r io.Reader, max int) *lineReader {
	return &lineReader{r: bufio.NewReaderSize(r, 4096), max: max}
}

// next returns the next line. A line longer than max is skipped to its end
// and reported as errLineTooLong; the reader stays usable. io.EOF is
// returned once the input is exhausted.
func (l *lineReader) next() (string, error) {
	var (
		buf     []byte
		read    int
		tooLong bool
	)

	for {
		chunk, err := l.r.ReadSlice('\n')
		read += len(chunk)
		if !tooLong {
			buf = append(buf, chunk...)
			// allow for a trailing "\r\n"
			if len(buf) > l.max+2 {
				tooLong = true
				buf = nil
			}
		}

		if err == bufio.ErrBufferFull {
			continue
		}
		if err != nil && err != io.EOF {
			return "", err
		}
		if err == io.EOF && read == 0 {
			return "", io.EOF
		}
		break
	}

	if tooLong {
		return "", errLineTooLong
	}

	line := strings.TrimSuffix(string(buf), "\n")
	line = strings.TrimSuffix(line, "\r")
	if len(line) > l.max {
		return "", errLineTooLong
	}
	return line, nil
}
