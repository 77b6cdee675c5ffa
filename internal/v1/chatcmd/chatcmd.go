// Package chatcmd implements spec.md §6's chat command syntax: messages are
// scanned for leading slash-commands prior to broadcast. Grounded on the
// teacher's chat_helpers.go buildChatEvent/shouldStoreChatInHistory pattern
// (internal/v1/session/chat_helpers.go), extended with the command parsing
// the distillation's original_source chat UI performed client-side and
// which this coordinator must now do server-side since it owns broadcast.
package chatcmd

import "strings"

// Kind distinguishes a plain chat message from a recognized slash-command.
type Kind string

const (
	KindMessage Kind = "message"
	KindMute    Kind = "mute"
	KindCam     Kind = "cam"
	KindHand    Kind = "hand"
	KindTTS     Kind = "tts"
)

// Command is the result of scanning one chat line.
type Command struct {
	Kind Kind
	Arg  string // remaining text after the command token, e.g. the /tts message
}

// Parse scans content for a leading slash-command per spec.md §6:
// "/mute", "/cam", "/hand", "/tts <text>" become local toggles or
// onTtsMessage events; anything else is delivered verbatim as a message.
func Parse(content string) Command {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "/") {
		return Command{Kind: KindMessage, Arg: content}
	}

	fields := strings.SplitN(trimmed, " ", 2)
	cmd := strings.ToLower(fields[0])
	var arg string
	if len(fields) > 1 {
		arg = strings.TrimSpace(fields[1])
	}

	switch cmd {
	case "/mute":
		return Command{Kind: KindMute}
	case "/cam":
		return Command{Kind: KindCam}
	case "/hand":
		return Command{Kind: KindHand}
	case "/tts":
		return Command{Kind: KindTTS, Arg: arg}
	default:
		// Unrecognized slash-prefixed text is delivered verbatim, the same
		// as any other message, rather than silently swallowed.
		return Command{Kind: KindMessage, Arg: content}
	}
}
