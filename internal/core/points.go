package core

import (
	"regexp"
	"sort"
	"strconv"
)

// pointsPattern marks a point-award message: a case-insensitive
// "Points: <n>" prefix with a 1-3 digit value.
var pointsPattern = regexp.MustCompile(`(?i)^points:\s*(\d{1,3})`)

const (
	minPoints = 1
	maxPoints = 100
)

// resolvePoints applies one message as a point award if it qualifies:
// the value must be in range, the sender must be in the admin set, and
// the message must quote a registered task. The target task is found by
// direct (day, author) lookup first, then by a fallback scan over all
// tasks by message id alone, which bridges the alternate identifier
// schemes the transport can emit for the same person. Unmatched quoted
// ids are dropped silently.
func (b *board) resolvePoints(m *Message, admins map[string]bool, selfJID string) {
	if m.Kind != KindText {
		return
	}
	match := pointsPattern.FindStringSubmatch(m.Text)
	if match == nil {
		return
	}
	points, err := strconv.Atoi(match[1])
	if err != nil || points < minPoints || points > maxPoints {
		return
	}

	sender := senderOf(m, selfJID)
	if !admins[LocalPart(sender)] {
		return
	}
	if m.QuotedID == "" {
		return
	}

	target := b.findTask(NormalizeJID(m.QuotedSender), m.QuotedID)
	if target == nil {
		return
	}
	target.Points = points
	target.Awarded = true
}

// findTask locates a registered task by its author and message id,
// falling back to an id-only scan across all members.
func (b *board) findTask(authorJID, messageID string) *TaskScore {
	for _, day := range b.sortedDays() {
		if node, ok := b.members[day][authorJID]; ok {
			for _, t := range node.Tasks {
				if t.MessageID == messageID {
					return t
				}
			}
		}
	}
	for _, day := range b.sortedDays() {
		jids := make([]string, 0, len(b.members[day]))
		for jid := range b.members[day] {
			jids = append(jids, jid)
		}
		sort.Strings(jids)
		for _, jid := range jids {
			for _, t := range b.members[day][jid].Tasks {
				if t.MessageID == messageID {
					return t
				}
			}
		}
	}
	return nil
}
