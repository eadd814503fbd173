package vm

import (
	"bufio"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/peterh/liner"
)

// LineReader supplies INPUT answers one line at a time. prompt is the
// text already printed on the current output line.
type LineReader interface {
	ReadLine(prompt string) (string, error)
}

// ErrInputAborted is returned when the user interrupts an INPUT.
var ErrInputAborted = errors.New("input aborted")

type streamReader struct {
	sc *bufio.Scanner
}

// NewStreamReader reads answers from r, one per line.
func NewStreamReader(r io.Reader) LineReader {
	return &streamReader{sc: bufio.NewScanner(r)}
}

func (s *streamReader) ReadLine(string) (string, error) {
	if !s.sc.Scan() {
		if err := s.sc.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return strings.TrimRight(s.sc.Text(), "\r"), nil
}

// Console reads answers from a terminal with line editing and history.
type Console struct {
	state *liner.State
}

func NewConsole() *Console {
	state := liner.NewLiner()
	state.SetCtrlCAborts(true)
	return &Console{state: state}
}

func (c *Console) ReadLine(prompt string) (string, error) {
	line, err := c.state.Prompt(prompt)
	if err == liner.ErrPromptAborted {
		return "", ErrInputAborted
	}
	if err != nil {
		return "", err
	}
	if line != "" {
		c.state.AppendHistory(line)
	}
	return line, nil
}

// Close restores the terminal mode.
func (c *Console) Close() error {
	return c.state.Close()
}

// StdinReader picks a Console when stdin is a terminal and a plain line
// scanner otherwise. The returned closer must be called when done.
func StdinReader() (LineReader, func() error) {
	fd := os.Stdin.Fd()
	if isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd) {
		c := NewConsole()
		return c, c.Close
	}
	return NewStreamReader(os.Stdin), func() error { return nil }
}
