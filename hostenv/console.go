package hostenv

import (
	"fmt"
	"io"

	"go.uber.org/zap"
)

const defaultHistory = 100

// Console collects guest log output. Lines go to an optional writer and
// to the package logger, and the most recent ones are kept in memory.
type Console struct {
	out     io.Writer
	history []string
	limit   int
	total   uint64
}

// NewConsole creates a console writing to out, which may be nil.
func NewConsole(out io.Writer) *Console {
	return &Console{out: out, limit: defaultHistory}
}

// Log records one line.
func (c *Console) Log(msg string) {
	c.total++
	if len(c.history) == c.limit {
		copy(c.history, c.history[1:])
		c.history = c.history[:c.limit-1]
	}
	c.history = append(c.history, msg)

	if c.out != nil {
		fmt.Fprintln(c.out, msg)
	}
	Logger().Info("console", zap.String("msg", msg))
}

// Lines returns up to the last n lines, oldest first.
func (c *Console) Lines(n int) []string {
	if n > len(c.history) {
		n = len(c.history)
	}
	out := make([]string, n)
	copy(out, c.history[len(c.history)-n:])
	return out
}

// Total returns the number of lines ever logged.
func (c *Console) Total() uint64 {
	return c.total
}
