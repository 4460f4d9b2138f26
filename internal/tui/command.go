package tui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/claridad-app/claridad/internal/cache"
)

var errUnknownCommand = errors.New("unknown command")

// Command represents a parsed command.
type Command struct {
	Name string
	Args string
}

var aliases = map[string]string{
	"q":    "quit",
	"h":    "help",
	"s":    "search",
	"p":    "panic",
	"exit": "quit",
}

var needsArgs = map[string]string{
	"panic":  "alert text",
	"search": "query",
	"join":   "neighborhood",
}

var known = map[string]bool{
	"quit": true, "help": true, "search": true, "panic": true,
	"join": true, "invite": true, "clear": true, "reload": true,
}

// ParseCommand parses a command string (without the leading ':').
func ParseCommand(input string) Command {
	input = strings.TrimSpace(input)
	parts := strings.SplitN(input, " ", 2)
	cmd := Command{Name: strings.ToLower(parts[0])}
	if full, ok := aliases[cmd.Name]; ok {
		cmd.Name = full
	}
	if len(parts) > 1 {
		cmd.Args = strings.TrimSpace(parts[1])
	}
	return cmd
}

// Validate reports unknown commands and missing arguments.
func (c Command) Validate() error {
	if !known[c.Name] {
		return fmt.Errorf("%w: %s", errUnknownCommand, c.Name)
	}
	if what, ok := needsArgs[c.Name]; ok && c.Args == "" {
		return fmt.Errorf(":%s needs %s", c.Name, what)
	}
	if c.Name == "clear" {
		_, err := parseClass(c.Args)
		return err
	}
	return nil
}

// parseClass maps a :clear argument to a cache class; empty means all.
func parseClass(s string) (cache.Class, error) {
	switch cache.Class(strings.ToLower(s)) {
	case "", cache.ClassAll:
		return cache.ClassAll, nil
	case cache.ClassMessages:
		return cache.ClassMessages, nil
	case cache.ClassChatInfo, "chatinfo":
		return cache.ClassChatInfo, nil
	case cache.ClassTyping:
		return cache.ClassTyping, nil
	case cache.ClassOnline:
		return cache.ClassOnline, nil
	default:
		return "", fmt.Errorf("unknown cache class %q", s)
	}
}
