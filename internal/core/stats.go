package core

import (
	"sort"
	"time"
)

// dayKeyFormat is the calendar-day bucket label, e.g. "Wed, Dec 25".
const dayKeyFormat = "Mon, Jan 2"

// statsLocation fixes the day-bucketing timezone so re-aggregation gives
// identical buckets regardless of host timezone.
var statsLocation = time.UTC

// dayKey buckets a Unix-second timestamp into its calendar day.
func dayKey(ts int64) (string, time.Time) {
	t := time.Unix(ts, 0).In(statsLocation)
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, statsLocation)
	return day.Format(dayKeyFormat), day
}

// board is the per-scan aggregation state: day bucket -> member JID ->
// stats. It is built fresh for every aggregation, never persisted.
type board struct {
	members map[string]map[string]*MemberStats
	days    map[string]time.Time
}

func newBoard() *board {
	return &board{
		members: make(map[string]map[string]*MemberStats),
		days:    make(map[string]time.Time),
	}
}

// member returns the stats node for (day, jid), creating it on first use.
func (b *board) member(day string, dayStart time.Time, jid, name string) *MemberStats {
	if _, ok := b.members[day]; !ok {
		b.members[day] = make(map[string]*MemberStats)
		b.days[day] = dayStart
	}
	node, ok := b.members[day][jid]
	if !ok {
		if name == "" {
			name = "Unknown"
		}
		node = &MemberStats{JID: jid, Name: name, Tasks: []*TaskScore{}}
		b.members[day][jid] = node
	}
	return node
}

// senderOf resolves the effective sender of a message: self-sent
// messages map to the logged-in account, everything else to the stored
// sender, always canonicalized.
func senderOf(m *Message, selfJID string) string {
	jid := m.Sender
	if m.FromMe && selfJID != "" {
		jid = selfJID
	}
	if jid == "" {
		jid = m.ChatJID
	}
	return NormalizeJID(jid)
}

// nameOf resolves a display name for a message's sender.
func nameOf(m *Message, jid string) string {
	if m.PushName != "" {
		return m.PushName
	}
	if m.FromMe {
		return "Me"
	}
	return LocalPart(jid)
}

// aggregate runs the full leaderboard computation over one window of
// messages. It is a pure function of its inputs: the same messages,
// admin set, self JID and clock always produce the same result.
func aggregate(msgs []*Message, admins map[string]bool, selfJID string, now time.Time) []*DaySummary {
	b := newBoard()

	// Pass A: per-day activity counters and reply counts.
	for _, m := range msgs {
		jid := senderOf(m, selfJID)
		day, dayStart := dayKey(int64(m.Timestamp))
		node := b.member(day, dayStart, jid, nameOf(m, jid))

		switch m.Kind {
		case KindText:
			node.Counts.Text++
		case KindImage:
			node.Counts.Image++
		case KindVideo:
			node.Counts.Video++
		}
		if m.QuotedID != "" {
			node.Counts.Replies++
		}
	}

	// Pass B: reactions performed, bucketed by the reaction's own
	// timestamp (falling back to the scan clock when absent).
	for _, m := range msgs {
		for _, r := range m.Reactions {
			reactor := NormalizeJID(r.Sender)
			if reactor == "" {
				continue
			}
			ts := int64(r.Timestamp)
			if ts == 0 {
				ts = now.Unix()
			}
			day, dayStart := dayKey(ts)
			node := b.member(day, dayStart, reactor, "")
			node.Counts.Reactions++
		}
	}

	// Pass C: task discovery, chronological.
	for _, m := range msgs {
		b.registerTask(m, selfJID)
	}

	// Pass D: point resolution, chronological; last valid award wins.
	for _, m := range msgs {
		b.resolvePoints(m, admins, selfJID)
	}

	// Pass E: totals, filtering and ordering.
	return b.summarize()
}

// summarize recomputes totals from task points and shapes the board into
// sorted day summaries. Members with no points, no tasks and no text
// activity are dropped.
func (b *board) summarize() []*DaySummary {
	days := make([]*DaySummary, 0, len(b.members))
	for day, nodes := range b.members {
		entries := make([]*MemberStats, 0, len(nodes))
		for _, node := range nodes {
			total := 0
			for _, t := range node.Tasks {
				total += t.Points
			}
			node.Points = total

			if node.Points > 0 || len(node.Tasks) > 0 || node.Counts.Text > 0 {
				entries = append(entries, node)
			}
		}
		if len(entries) == 0 {
			continue
		}
		sort.SliceStable(entries, func(i, j int) bool {
			if entries[i].Points != entries[j].Points {
				return entries[i].Points > entries[j].Points
			}
			return entries[i].JID < entries[j].JID
		})
		days = append(days, &DaySummary{Date: day, Members: entries, day: b.days[day]})
	}
	sort.SliceStable(days, func(i, j int) bool {
		return days[i].day.After(days[j].day)
	})
	return days
}

// sortedDays returns the board's day keys in a fixed order so scans over
// the board are deterministic.
func (b *board) sortedDays() []string {
	keys := make([]string, 0, len(b.members))
	for day := range b.members {
		keys = append(keys, day)
	}
	sort.Slice(keys, func(i, j int) bool {
		return b.days[keys[i]].Before(b.days[keys[j]])
	})
	return keys
}
