package messaging

import (
	"bufio"
	"io"
)

// LineConsumer is the Consumer implementation stream mode actually runs in
// production: one input line per Consume callback, read from an io.Reader
// (typically os.Stdin).
type LineConsumer struct {
	r io.Reader
}

// NewLineConsumer wraps r as a line-oriented Consumer.
func NewLineConsumer(r io.Reader) *LineConsumer {
	return &LineConsumer{r: r}
}

// Consume scans r line by line, forwarding each non-empty line (trimmed of
// its trailing newline) to events. Returns nil at EOF, or the scanner's
// error otherwise.
func (l *LineConsumer) Consume(events chan<- []byte) error {
	scanner := bufio.NewScanner(l.r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		cp := make([]byte, len(line))
		copy(cp, line)
		events <- cp
	}
	return scanner.Err()
}
