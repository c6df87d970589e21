package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Input errors.
var (
	ErrInputCancelled = errors.New("input canceled")
	ErrEmptyInput     = errors.New("no input given")
)

// LineReader reads lines from a terminal without blocking context cancellation.
type LineReader struct {
	reader *bufio.Reader
	writer io.Writer
	mu     sync.Mutex
}

// NewLineReader reads from r and writes prompts to w.
func NewLineReader(r io.Reader, w io.Writer) *LineReader {
	return &LineReader{reader: bufio.NewReader(r), writer: w}
}

// ReadLine reads one trimmed line. A canceled context returns
// ErrInputCancelled; the pending read is abandoned.
func (r *LineReader) ReadLine(ctx context.Context) (string, error) {
	if ctx.Err() != nil {
		return "", ErrInputCancelled
	}

	type result struct {
		err   error
		value string
	}
	resultCh := make(chan result, 1)

	go func() {
		r.mu.Lock()
		defer r.mu.Unlock()

		value, err := r.reader.ReadString('\n')
		if errors.Is(err, io.EOF) && value != "" {
			err = nil
		}
		resultCh <- result{value: strings.TrimSpace(value), err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ErrInputCancelled
	case res := <-resultCh:
		return res.value, res.err
	}
}

// Ask prints prompt and reads a non-empty answer.
func (r *LineReader) Ask(ctx context.Context, prompt string) (string, error) {
	if _, err := fmt.Fprint(r.writer, FormatPrompt(prompt)); err != nil {
		return "", fmt.Errorf("failed to write prompt: %w", err)
	}
	answer, err := r.ReadLine(ctx)
	if err != nil {
		return "", err
	}
	if answer == "" {
		return "", ErrEmptyInput
	}
	return answer, nil
}
