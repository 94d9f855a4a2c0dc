package whisper

import (
	"regexp"
	"strconv"
	"strings"
)

// Span is one timestamped line of whisper-cli output.
type Span struct {
	Start float64
	End   float64
	Text  string
}

// whisper-cli prints one line per detected span:
//
//	[00:00:00.000 --> 00:00:02.340]  and so we begin
var lineRe = regexp.MustCompile(`^\[(\d{2}):(\d{2}):(\d{2})\.(\d{3}) --> (\d{2}):(\d{2}):(\d{2})\.(\d{3})\]\s*(.*)$`)

// ParseTranscript extracts spans from whisper-cli stdout. Lines that
// do not match the timestamp shape are ignored.
func ParseTranscript(output string) []Span {
	var spans []Span
	for _, line := range strings.Split(output, "\n") {
		m := lineRe.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		text := strings.TrimSpace(m[9])
		if text == "" {
			continue
		}
		spans = append(spans, Span{
			Start: timestampSeconds(m[1], m[2], m[3], m[4]),
			End:   timestampSeconds(m[5], m[6], m[7], m[8]),
			Text:  text,
		})
	}
	return spans
}

func timestampSeconds(h, m, s, ms string) float64 {
	hours, _ := strconv.Atoi(h)
	mins, _ := strconv.Atoi(m)
	secs, _ := strconv.Atoi(s)
	millis, _ := strconv.Atoi(ms)
	return float64(hours*3600+mins*60+secs) + float64(millis)/1000.0
}
