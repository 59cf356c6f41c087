package bot

import (
	"fmt"
	"strings"
	"time"

	"github.com/akhmetov/weighbot/storage"
)

// Broadcast is the group announcement produced by a committed report.
// When MediaURL is set the transport sends the photo with the text as a
// caption; otherwise the text goes out alone.
type Broadcast struct {
	Text      string
	MediaURL  string
	MediaName string
}

// composeBroadcast builds the group message from the authoritative saved
// weighing. Draft figures are never used here: the row that actually
// committed is what the group sees.
func composeBroadcast(w *storage.Weighing, d ReportDraft, at time.Time) Broadcast {
	var b strings.Builder
	b.WriteString("⚖️ Новое взвешивание\n\n")
	fmt.Fprintf(&b, "👤 Водитель: %s\n", strings.ToUpper(w.DriverName))
	fmt.Fprintf(&b, "📞 Телефон: %s\n", w.DriverPhone)
	fmt.Fprintf(&b, "🚛 Машина: %s\n", w.TruckNumber)
	fmt.Fprintf(&b, "🏢 Клиент: %s\n", w.ClientName)
	if w.StationName != "" {
		fmt.Fprintf(&b, "📍 Весовая: %s\n", w.StationName)
	}
	fmt.Fprintf(&b, "⚖️ Предыдущий вес: %s кг\n", formatWeight(w.PreviousWeight))
	fmt.Fprintf(&b, "⚖️ Текущий вес: %s кг\n", formatWeight(w.CurrentWeight))
	fmt.Fprintf(&b, "📊 Разница: %s кг\n", formatWeight(w.WeightDifference))
	fmt.Fprintf(&b, "🕐 Время: %s", at.Format("02.01.2006 15:04"))

	bc := Broadcast{Text: b.String()}
	if d.PhotoReceived && d.PhotoURL != "" {
		bc.MediaURL = d.PhotoURL
		bc.MediaName = photoAssetName(w.TruckNumber, at)
	}
	return bc
}

// photoAssetName builds the attachment file name for a report photo, for
// example "A123BC_20260824_153045.jpg". Spaces in the truck number become
// underscores so the name stays a single token.
func photoAssetName(truck string, at time.Time) string {
	t := strings.ReplaceAll(truck, " ", "_")
	return fmt.Sprintf("%s_%s.jpg", t, at.Format("20060102_150405"))
}
