package parser

import (
	"regexp"
	"strings"
)

var (
	blockRegex  = regexp.MustCompile(`(?i)([a-z]+)\(([\s\S]*?)\)\s*\{([\s\S]*?)\}`)
	actionRegex = regexp.MustCompile(`(?i)([a-z]+)\(([\s\S]*?)\)`)
	alertRegex  = regexp.MustCompile(`\{!\}`)
	spaceRegex  = regexp.MustCompile(`\s+`)
)

// Block is one `exchange(symbol) { actions }` section of a message.
type Block struct {
	Exchange string
	Symbol   string
	Actions  string
}

// Action is a single `name(args)` call inside a block.
type Action struct {
	Name string
	Args Args
}

// CommandBlocks finds every command block in a message. Blocks without a
// symbol or without any actions are skipped.
func CommandBlocks(msg string) []Block {
	var blocks []Block
	for _, m := range blockRegex.FindAllStringSubmatch(msg, -1) {
		b := Block{
			Exchange: strings.ToLower(strings.TrimSpace(m[1])),
			Symbol:   strings.TrimSpace(m[2]),
			Actions:  strings.TrimSpace(m[3]),
		}
		if b.Exchange == "" || b.Symbol == "" || b.Actions == "" {
			continue
		}
		blocks = append(blocks, b)
	}
	return blocks
}

// ParseActions extracts the actions from the body of a block. Separators
// between actions are optional.
func ParseActions(text string) []Action {
	var actions []Action
	for _, m := range actionRegex.FindAllStringSubmatch(text, -1) {
		actions = append(actions, Action{
			Name: strings.TrimSpace(m[1]),
			Args: ParseArguments(strings.TrimSpace(m[2])),
		})
	}
	return actions
}

// AlertText returns the text to broadcast when a message carries the {!}
// marker: the message with its command blocks and the marker removed.
// The second result is false when no alert was requested or nothing is left.
func AlertText(msg string) (string, bool) {
	if !alertRegex.MatchString(msg) {
		return "", false
	}

	text := blockRegex.ReplaceAllString(msg, "")
	if loc := alertRegex.FindStringIndex(text); loc != nil {
		text = text[:loc[0]] + text[loc[1]:]
	}
	text = strings.TrimSpace(spaceRegex.ReplaceAllString(text, " "))
	return text, text != ""
}

// Summary collapses the whitespace after separators so a block prints on one line.
func Summary(actions string) string {
	parts := strings.Split(strings.TrimSpace(actions), ";")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return strings.Join(parts, "; ")
}
