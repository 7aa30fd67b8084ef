package stats

import (
	"fmt"
	"html"
	"sort"
	"strings"

	"github.com/mr-karan/boxrelay/pkg/models"
)

// maxRows caps each breakdown so the reply stays readable.
const maxRows = 10

// Format renders an alert summary as Telegram HTML.
func Format(s *models.AlertStats, q Query) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 <b>Статистика тревог</b> (%s)\n\n", html.EscapeString(q.Label()))
	fmt.Fprintf(&b, "Всего: <b>%d</b>\n", s.Total)

	writeSection(&b, "По статусу", s.ByStatus)
	writeSection(&b, "По алгоритму", s.ByAlgorithm)
	writeSection(&b, "По устройству", s.ByDevice)

	if s.GeneratedAt != nil {
		fmt.Fprintf(&b, "\n<i>Обновлено: %s</i>", s.GeneratedAt.Format("2006-01-02 15:04"))
	}
	return strings.TrimRight(b.String(), "\n")
}

type row struct {
	key   string
	count int64
}

func writeSection(b *strings.Builder, title string, counts map[string]int64) {
	if len(counts) == 0 {
		return
	}
	rows := make([]row, 0, len(counts))
	for k, v := range counts {
		rows = append(rows, row{k, v})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].count != rows[j].count {
			return rows[i].count > rows[j].count
		}
		return rows[i].key < rows[j].key
	})

	fmt.Fprintf(b, "\n<b>%s:</b>\n", title)
	for i, r := range rows {
		if i == maxRows {
			fmt.Fprintf(b, "• … ещё %d\n", len(rows)-maxRows)
			break
		}
		fmt.Fprintf(b, "• %s: %d\n", html.EscapeString(r.key), r.count)
	}
}
