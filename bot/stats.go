package bot

import (
	"fmt"
	"strings"
	"time"

	"github.com/akhmetov/weighbot/storage"
)

// periodSince maps a statistics menu token to the lower time bound of the
// report. A nil bound means all time. The "today" preset starts at local
// midnight, not 24 hours ago.
func periodSince(now time.Time, token string) (*time.Time, string, bool) {
	switch strings.TrimSpace(token) {
	case "1":
		midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		return &midnight, "сегодня", true
	case "2":
		since := now.AddDate(0, 0, -7)
		return &since, "последние 7 дней", true
	case "3":
		since := now.AddDate(0, 0, -30)
		return &since, "последние 30 дней", true
	case "4":
		return nil, "всё время", true
	}
	return nil, "", false
}

// formatStatistics renders aggregates into the reply text. Groupings with no
// rows are omitted; a fully empty result gets the dedicated empty message.
func formatStatistics(stats *storage.Statistics, periodLabel string) string {
	if stats == nil ||
		len(stats.ByDriver) == 0 && len(stats.ByTruck) == 0 && len(stats.ByClient) == 0 {
		return msgStatsEmpty
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📊 Статистика (%s)\n", periodLabel)

	writeGroup(&b, "👤 По водителям", stats.ByDriver)
	writeGroup(&b, "🚛 По машинам", stats.ByTruck)
	writeGroup(&b, "🏢 По клиентам", stats.ByClient)

	b.WriteString("\nОтправьте 0 для возврата в меню.")
	return b.String()
}

func writeGroup(b *strings.Builder, title string, rows []storage.StatRow) {
	if len(rows) == 0 {
		return
	}
	fmt.Fprintf(b, "\n%s:\n", title)
	for i, r := range rows {
		label := r.Label
		if label == "" {
			label = r.Key
		}
		fmt.Fprintf(b, "%d. %s — %d взвеш., всего %s кг, среднее %s кг\n",
			i+1, label, r.Count, formatWeight(r.Total), formatWeight(r.Average))
	}
}
