package main

import (
	"fmt"
	"strings"
)

type inputKind int

const (
	inputMessage inputKind = iota
	inputAuth
	inputJoin
	inputRename
	inputHelp
)

// userInput is one parsed line of console input. Lines starting with '/' are
// local commands; everything else is chat content sent verbatim.
type userInput struct {
	Kind        inputKind
	Username    string
	Secret      string
	DisplayName string
	Channel     string
	Content     string
}

const helpText = `Commands:
  /auth {username} {secret} {displayName}   authenticate with the server
  /join {channel}                           join a channel
  /rename {displayName}                     change the local display name
  /help                                     print this listing
Any other input is sent as a chat message.`

func parseInput(line string) (userInput, error) {
	if !strings.HasPrefix(line, "/") {
		return userInput{Kind: inputMessage, Content: line}, nil
	}

	fields := strings.Fields(line)
	switch fields[0] {
	case "/auth":
		if len(fields) != 4 {
			return userInput{}, fmt.Errorf("usage: /auth {username} {secret} {displayName}")
		}
		return userInput{
			Kind:        inputAuth,
			Username:    fields[1],
			Secret:      fields[2],
			DisplayName: fields[3],
		}, nil
	case "/join":
		if len(fields) != 2 {
			return userInput{}, fmt.Errorf("usage: /join {channel}")
		}
		return userInput{Kind: inputJoin, Channel: fields[1]}, nil
	case "/rename":
		if len(fields) != 2 {
			return userInput{}, fmt.Errorf("usage: /rename {displayName}")
		}
		return userInput{Kind: inputRename, DisplayName: fields[1]}, nil
	case "/help":
		return userInput{Kind: inputHelp}, nil
	default:
		return userInput{}, fmt.Errorf("unknown command %q, try /help", fields[0])
	}
}
