package session

import (
	"fmt"
	"strings"
)

// keySequences maps named keys to the byte sequences a terminal-attached
// process expects. Names match case-insensitively.
var keySequences = map[string]string{
	"enter":     "\r",
	"return":    "\r",
	"tab":       "\t",
	"space":     " ",
	"backspace": "\x7f",
	"escape":    "\x1b",
	"esc":       "\x1b",
	"up":        "\x1b[A",
	"down":      "\x1b[B",
	"right":     "\x1b[C",
	"left":      "\x1b[D",
	"home":      "\x1b[H",
	"end":       "\x1b[F",
	"ctrl-c":    "\x03",
	"ctrl-d":    "\x04",
	"ctrl-l":    "\x0c",
	"ctrl-u":    "\x15",
	"ctrl-z":    "\x1a",
}

// EncodeKeys translates named keys into the bytes to write to a session's
// terminal. An unknown name is an error and nothing is encoded partially.
func EncodeKeys(keys []string) (string, error) {
	var b strings.Builder
	for _, k := range keys {
		seq, ok := keySequences[strings.ToLower(k)]
		if !ok {
			return "", fmt.Errorf("unknown key %q", k)
		}
		b.WriteString(seq)
	}
	return b.String(), nil
}
