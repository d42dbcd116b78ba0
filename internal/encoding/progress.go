package encoding

import (
	"math"
	"regexp"
	"strconv"
)

var (
	durationPattern = regexp.MustCompile(`Duration: (\d{2}):(\d{2}):(\d{2})\.(\d{2})`)
	timePattern     = regexp.MustCompile(`time=(\d{2}):(\d{2}):(\d{2})\.(\d{2})`)
)

// progressExtractor turns engine log lines into percentages for one job.
// The first non-zero Duration line fixes the total; every later time= line
// publishes round(elapsed/total*100) clamped to [0, 100] when it differs from
// the last published value. Regressions are published as-is.
type progressExtractor struct {
	total   float64
	last    int
	publish func(int)
}

func newProgressExtractor(publish func(int)) *progressExtractor {
	return &progressExtractor{last: -1, publish: publish}
}

func (p *progressExtractor) observe(line string) {
	if p.total == 0 {
		if m := durationPattern.FindStringSubmatch(line); m != nil {
			p.total = timestampSeconds(m[1:])
		}
	}
	m := timePattern.FindStringSubmatch(line)
	if m == nil || p.total <= 0 {
		return
	}
	elapsed := timestampSeconds(m[1:])
	percent := int(math.Round(math.Max(0, math.Min(100, elapsed/p.total*100))))
	if percent == p.last {
		return
	}
	p.last = percent
	if p.publish != nil {
		p.publish(percent)
	}
}

// timestampSeconds converts [HH, MM, SS, cc] captures to seconds.
func timestampSeconds(parts []string) float64 {
	if len(parts) != 4 {
		return 0
	}
	var values [4]float64
	for i, part := range parts {
		v, err := strconv.Atoi(part)
		if err != nil {
			return 0
		}
		values[i] = float64(v)
	}
	return values[0]*3600 + values[1]*60 + values[2] + values[3]/100
}
