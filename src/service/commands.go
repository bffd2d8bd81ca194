package service

import (
	"strings"
)

// command is a decoded control protocol command.
type command interface {
	isCommand()
}

// statusCommand reports the status of every node.
type statusCommand struct{}

// stopCommand stops one node by name.
type stopCommand struct {
	name string
}

// startCommand stop-then-starts one node by name.
type startCommand struct {
	name string
}

// unknownCommand is anything the protocol does not recognize.
type unknownCommand struct {
	text string
}

func (statusCommand) isCommand()  {}
func (stopCommand) isCommand()    {}
func (startCommand) isCommand()   {}
func (unknownCommand) isCommand() {}

// parseCommand decodes one line of wire text. The wire format is
// "command[ argument]".
func parseCommand(line string) command {
	verb, arg := line, ""
	if i := strings.IndexByte(line, ' '); i >= 0 {
		verb, arg = line[:i], strings.TrimSpace(line[i+1:])
	}

	switch verb {
	case "status":
		return statusCommand{}
	case "stop":
		return stopCommand{name: arg}
	case "start":
		return startCommand{name: arg}
	default:
		return unknownCommand{text: line}
	}
}
