package core

import (
	"fmt"
	"strings"
)

// RenderDigest formats a leaderboard as the publishable WhatsApp digest:
// per-day sections with rank medals, totals, activity counters and task
// scoring lines.
func RenderDigest(days []*DaySummary) string {
	var sb strings.Builder
	sb.WriteString("📊 *Task & Points Summary* 📊\n")

	for _, day := range days {
		sb.WriteString(fmt.Sprintf("\n📅 *%s*\n", day.Date))
		for i, member := range day.Members {
			medal := "👤"
			switch i {
			case 0:
				medal = "🥇"
			case 1:
				medal = "🥈"
			case 2:
				medal = "🥉"
			}
			sb.WriteString(fmt.Sprintf("\n%s *%s*", medal, member.Name))
			sb.WriteString(fmt.Sprintf("\n   💰 *Total Points*: %d", member.Points))

			c := member.Counts
			sb.WriteString(fmt.Sprintf("\n   📊 Activities: 💬%d  📷%d  🎥%d  ↩️%d  ❤️%d",
				c.Text, c.Image, c.Video, c.Replies, c.Reactions))

			if len(member.Tasks) > 0 {
				sb.WriteString("\n   📝 *Tasks*:")
				for _, t := range member.Tasks {
					status := "[⏳ Pending]"
					if t.Awarded {
						status = fmt.Sprintf("[✅ %d pts]", t.Points)
					}
					sb.WriteString(fmt.Sprintf("\n     └ %s %s", status, t.Text))
				}
			}
		}
		sb.WriteString("\n────────────────\n")
	}

	sb.WriteString("\n_Keep up the good work!_ 🚀")
	return sb.String()
}
