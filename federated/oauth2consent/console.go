package oauth2consent

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	goSession "github.com/MrEthical07/goSession"
)

// ConsolePrompt prints the authorization URL and reads the redirect URL (or the code)
// from one input line. An empty line or end of input cancels. In is shared with the
// caller's own line reading, so it must be the same *bufio.Reader.
type ConsolePrompt struct {
	In  *bufio.Reader
	Out io.Writer
}

func (p ConsolePrompt) Authorize(ctx context.Context, authURL string) (string, error) {
	fmt.Fprintf(p.Out, "Open this URL to continue, then paste the redirect URL (empty line cancels):\n%s\n> ", authURL)

	type result struct {
		line string
		err  error
	}
	lines := make(chan result, 1)
	go func() {
		line, err := p.In.ReadString('\n')
		lines <- result{line: line, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-lines:
		line := strings.TrimSpace(r.line)
		if line == "" {
			return "", goSession.ErrCancelled
		}
		if r.err != nil && r.err != io.EOF {
			return "", r.err
		}
		return line, nil
	}
}
