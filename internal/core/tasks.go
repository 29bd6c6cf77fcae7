package core

import (
	"regexp"
	"unicode/utf8"
)

// taskPattern marks a message as a task: a case-insensitive "Task:"
// prefix anchored at the start of the primary text.
var taskPattern = regexp.MustCompile(`(?i)^task:`)

// taskSnippetLen bounds the stored task text.
const taskSnippetLen = 40

// taskText returns the message's task content when it qualifies: the
// top-level text, or an image/video caption, matching the task prefix.
func taskText(m *Message) (string, bool) {
	switch m.Kind {
	case KindText, KindImage, KindVideo:
		if taskPattern.MatchString(m.Text) {
			return m.Text, true
		}
	}
	return "", false
}

// snippet truncates task text for the leaderboard, marking truncation
// with an ellipsis.
func snippet(text string) string {
	if utf8.RuneCountInString(text) <= taskSnippetLen {
		return text
	}
	runes := []rune(text)
	return string(runes[:taskSnippetLen]) + "..."
}

// registerTask records a qualifying message as a task under its author's
// day bucket with zero points. Re-registering the same message id is a
// no-op, so repeated scans of one window stay idempotent.
func (b *board) registerTask(m *Message, selfJID string) {
	text, ok := taskText(m)
	if !ok {
		return
	}

	jid := senderOf(m, selfJID)
	day, dayStart := dayKey(int64(m.Timestamp))
	node := b.member(day, dayStart, jid, nameOf(m, jid))

	for _, t := range node.Tasks {
		if t.MessageID == m.ID {
			return
		}
	}
	node.Tasks = append(node.Tasks, &TaskScore{
		MessageID: m.ID,
		Text:      snippet(text),
	})
}
