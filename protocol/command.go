package protocol

import (
	"fmt"
	"strings"
)

// Command is one of the five fixed movement commands understood by the robot.
// The value of each constant is the exact ASCII token written on the wire.
type Command string

const (
	// CommandInit readies the robot's servos. It is sent automatically
	// immediately after every successful connect.
	CommandInit Command = "init"
	// CommandForward walks the robot forward.
	CommandForward Command = "forward"
	// CommandBackward walks the robot backward.
	CommandBackward Command = "backward"
	// CommandLeft turns the robot left.
	CommandLeft Command = "left"
	// CommandRight turns the robot right.
	CommandRight Command = "right"
)

// Commands lists every valid command in wire order.
func Commands() []Command {
	return []Command{CommandInit, CommandForward, CommandBackward, CommandLeft, CommandRight}
}

// Valid reports whether c is one of the five known commands.
func (c Command) Valid() bool {
	switch c {
	case CommandInit, CommandForward, CommandBackward, CommandLeft, CommandRight:
		return true
	}
	return false
}

// Token returns the lowercase ASCII wire token for c.
func (c Command) Token() string {
	return string(c)
}

// ParseCommand maps user input to a Command, tolerating case and whitespace.
func ParseCommand(raw string) (Command, error) {
	cmd := Command(strings.ToLower(strings.TrimSpace(raw)))
	if !cmd.Valid() {
		return "", fmt.Errorf("unknown command %q", raw)
	}
	return cmd, nil
}
