package moderation

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/m3rciful/fingames/internal/registration"
)

// MaxMessageLen bounds rendered listings so they fit a single chat message.
const MaxMessageLen = 4000

func statusLabel(status string) string {
	if status == registration.StatusUsed {
		return "❌ Использован"
	}
	return "✅ Активен"
}

func renderEntry(e Entry) string {
	var b strings.Builder
	b.WriteString(e.VoucherCode)
	b.WriteString(" → ")
	b.WriteString(e.Game)
	if e.SlotDate != "" || e.SlotTime != "" {
		b.WriteString(" → ")
		b.WriteString(strings.TrimSpace(e.SlotDate + " " + e.SlotTime))
	}
	b.WriteString(" → ")
	b.WriteString(statusLabel(e.Status))
	return b.String()
}

// RenderList renders entries under title, one per line, keeping the result
// within limit characters. When not everything fits, the tail is replaced by a
// note with the number of omitted entries. A non-positive limit means MaxMessageLen.
func RenderList(title string, list []Entry, limit int) string {
	if limit <= 0 || limit > MaxMessageLen {
		limit = MaxMessageLen
	}
	if len(list) == 0 {
		return "📭 Пока нет регистраций."
	}

	head := title + "\n\n"
	lines := make([]string, len(list))
	total := utf8.RuneCountInString(head)
	for i, e := range list {
		lines[i] = renderEntry(e) + "\n"
		total += utf8.RuneCountInString(lines[i])
	}
	if total <= limit {
		return head + strings.Join(lines, "")
	}

	var b strings.Builder
	b.WriteString(head)
	used := utf8.RuneCountInString(head)
	for i, line := range lines {
		note := truncatedNote(len(lines) - i)
		n := utf8.RuneCountInString(line)
		if used+n+utf8.RuneCountInString(truncatedNote(len(lines)-i-1)) > limit {
			if used+utf8.RuneCountInString(note) <= limit {
				b.WriteString(note)
			}
			break
		}
		b.WriteString(line)
		used += n
	}
	return b.String()
}

func truncatedNote(omitted int) string {
	return fmt.Sprintf("… и ещё %d (полный список: /export)", omitted)
}

// RenderStats renders the fill table produced by Stats.
func RenderStats(stats []SlotStat) string {
	if len(stats) == 0 {
		return "📭 Пока нет регистраций."
	}
	var b strings.Builder
	b.WriteString("📊 Заполненность:\n")
	game := ""
	total, used := 0, 0
	for _, s := range stats {
		if s.Game != game {
			game = s.Game
			b.WriteString("\n")
			b.WriteString(game)
			b.WriteString("\n")
		}
		total += s.Taken
		used += s.Used
		if s.Capacity > 0 {
			fmt.Fprintf(&b, "  %s: %d/%d (пришли: %d)\n", s.Slot, s.Taken, s.Capacity, s.Used)
			continue
		}
		fmt.Fprintf(&b, "  всего: %d (пришли: %d)\n", s.Taken, s.Used)
	}
	fmt.Fprintf(&b, "\nИтого: %d, использовано: %d", total, used)
	return b.String()
}
