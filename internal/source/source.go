// Package source picks the patch text from a file, stdin or the clipboard.
package source

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/atotto/clipboard"
)

// Origin names where a patch was read from.
type Origin string

const (
	OriginFile      Origin = "file"
	OriginStdin     Origin = "stdin"
	OriginClipboard Origin = "clipboard"
)

// ErrNoInput is returned when no source was given and stdin is a terminal.
var ErrNoInput = errors.New("no patch given: pass a file, pipe the patch on stdin or use --clipboard")

// Options selects the source. Path "-" forces stdin.
type Options struct {
	Path      string
	Clipboard bool
	Stdin     io.Reader

	// ReadClipboard overrides the system clipboard, mainly for tests.
	ReadClipboard func() (string, error)
}

// Payload is the patch text and where it came from.
type Payload struct {
	Text   string
	Origin Origin
	Name   string
}

// Read resolves the patch text. The clipboard wins over a path, a path wins
// over piped stdin.
func Read(opts Options) (Payload, error) {
	switch {
	case opts.Clipboard:
		return readClipboard(opts)
	case opts.Path == "-":
		return readStdin(opts.Stdin)
	case opts.Path != "":
		data, err := os.ReadFile(opts.Path)
		if err != nil {
			return Payload{}, fmt.Errorf("failed to read patch file: %w", err)
		}
		return Payload{Text: string(data), Origin: OriginFile, Name: opts.Path}, nil
	case isPiped(opts.Stdin):
		return readStdin(opts.Stdin)
	default:
		return Payload{}, ErrNoInput
	}
}

func readStdin(stdin io.Reader) (Payload, error) {
	if stdin == nil {
		return Payload{}, ErrNoInput
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return Payload{}, fmt.Errorf("failed to read from stdin: %w", err)
	}
	return Payload{Text: string(data), Origin: OriginStdin, Name: "-"}, nil
}

func readClipboard(opts Options) (Payload, error) {
	read := opts.ReadClipboard
	if read == nil {
		read = clipboard.ReadAll
	}
	content, err := read()
	if err != nil {
		return Payload{}, fmt.Errorf("failed to read from clipboard: %w", err)
	}
	if strings.TrimSpace(content) == "" {
		return Payload{}, errors.New("clipboard is empty")
	}
	return Payload{Text: content, Origin: OriginClipboard, Name: "clipboard"}, nil
}

// isPiped reports whether stdin carries data rather than a terminal. Readers
// that are not files count as piped.
func isPiped(stdin io.Reader) bool {
	if stdin == nil {
		return false
	}
	file, ok := stdin.(*os.File)
	if !ok {
		return true
	}
	stat, err := file.Stat()
	if err != nil {
		return false
	}
	return stat.Mode()&os.ModeCharDevice == 0
}
