package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/abgdnv/shopassist/internal/assistant"
)

const (
	prompt        = ":"
	attachCommand = "/attach "
)

type asker interface {
	Ask(ctx context.Context, req assistant.Request) string
}

// repl reads one request per line and prints the answer. "/attach <path>" attaches a file
// to the next request. It returns when input ends, on "exit" or "quit", or when ctx is done.
func repl(ctx context.Context, in io.Reader, out io.Writer, a asker, readFile func(string) ([]byte, error)) error {
	scanner := bufio.NewScanner(in)
	var attachment *assistant.Attachment
	for {
		if _, err := fmt.Fprint(out, prompt); err != nil {
			return err
		}
		if !scanner.Scan() {
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "exit" || line == "quit":
			return nil
		case strings.HasPrefix(line, attachCommand):
			path := strings.TrimSpace(strings.TrimPrefix(line, attachCommand))
			content, err := readFile(path)
			if err != nil {
				_, _ = fmt.Fprintf(out, "Could not read %s: %v\n", path, err)
				continue
			}
			attachment = &assistant.Attachment{Name: filepath.Base(path), Content: content}
			_, _ = fmt.Fprintf(out, "Attached %s (%d bytes)\n", attachment.Name, len(content))
			continue
		}

		answer := a.Ask(ctx, assistant.Request{Prompt: line, Attachment: attachment, RequestedBy: "chat"})
		attachment = nil
		if _, err := fmt.Fprintln(out, answer); err != nil {
			return err
		}
	}
}
