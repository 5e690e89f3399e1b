package transcript

import (
	"fmt"
	"strings"
)

// RenderSRT renders segments as SubRip subtitles. Pairs of original and
// translated text can be rendered together by passing both slices; when
// translated is nil only the originals are emitted. Both slices must share
// indexes and timing when supplied.
func RenderSRT(segments, translated []Segment) string {
	var b strings.Builder
	entry := 1
	for i, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		var second string
		if translated != nil && i < len(translated) {
			second = strings.TrimSpace(translated[i].Text)
		}
		if text == "" && second == "" {
			continue
		}
		fmt.Fprintf(&b, "%d\n%s --> %s\n", entry, srtTimestamp(seg.Start), srtTimestamp(seg.End))
		if text != "" {
			b.WriteString(text)
			b.WriteByte('\n')
		}
		if second != "" && !strings.EqualFold(second, text) {
			b.WriteString(second)
			b.WriteByte('\n')
		}
		b.WriteByte('\n')
		entry++
	}
	return b.String()
}

func srtTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	millis := int64(seconds*1000 + 0.5)
	h := millis / 3600000
	millis %= 3600000
	m := millis / 60000
	millis %= 60000
	s := millis / 1000
	ms := millis % 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}
