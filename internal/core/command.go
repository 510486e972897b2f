package core

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// CommandMatcher decides whether content is addressed to the bot layer.
type CommandMatcher func(content string) bool

var commandPattern = regexp.MustCompile(`^/[a-zA-Z0-9_]+(@\S+)?(\s|$)`)

// IsCommand is the default bot command convention: "/name" or "/name@bot", followed by
// whitespace or end of content.
func IsCommand(content string) bool {
	return commandPattern.MatchString(content)
}

// Classify returns the message type for content.
func Classify(content string, match CommandMatcher) MessageType {
	if match == nil {
		match = IsCommand
	}
	if match(content) {
		return MessageCommand
	}
	return MessageText
}

// ValidSender reports whether a web nickname starts with a word character
// (a Unicode letter, digit, or underscore) after trimming surrounding space.
func ValidSender(sender string) bool {
	sender = strings.TrimSpace(sender)
	if sender == "" {
		return false
	}
	r, _ := utf8.DecodeRuneInString(sender)
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
