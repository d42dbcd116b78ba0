package encoding

import (
	"reflect"
	"testing"
)

func collect() (*progressExtractor, *[]int) {
	var got []int
	return newProgressExtractor(func(p int) { got = append(got, p) }), &got
}

func TestProgressExtractorHalfway(t *testing.T) {
	p, got := collect()
	p.observe("  Duration: 00:01:40.00, start: 0.000000, bitrate: 1205 kb/s")
	p.observe("frame=  750 fps=100 q=28.0 size=1024kB time=00:00:50.00 bitrate= 167.8kbits/s speed=6.6x")
	if !reflect.DeepEqual(*got, []int{50}) {
		t.Fatalf("published %v, want [50]", *got)
	}
}

func TestProgressExtractorClampsAbove100(t *testing.T) {
	p, got := collect()
	p.observe("Duration: 00:00:10.00")
	p.observe("time=00:00:12.50")
	if !reflect.DeepEqual(*got, []int{100}) {
		t.Fatalf("published %v, want [100]", *got)
	}
}

func TestProgressExtractorIgnoresTimeBeforeDuration(t *testing.T) {
	p, got := collect()
	p.observe("time=00:00:05.00")
	p.observe("Duration: 00:00:10.00")
	p.observe("time=00:00:05.00")
	if !reflect.DeepEqual(*got, []int{50}) {
		t.Fatalf("published %v, want [50]", *got)
	}
}

func TestProgressExtractorKeepsFirstDuration(t *testing.T) {
	p, got := collect()
	p.observe("Duration: 00:00:10.00")
	p.observe("Duration: 00:00:40.00")
	p.observe("time=00:00:05.00")
	if !reflect.DeepEqual(*got, []int{50}) {
		t.Fatalf("published %v, want [50] based on first duration", *got)
	}
}

func TestProgressExtractorZeroDurationStaysUnknown(t *testing.T) {
	p, got := collect()
	p.observe("Duration: 00:00:00.00")
	p.observe("time=00:00:01.00")
	if len(*got) != 0 {
		t.Fatalf("expected nothing published for zero duration, got %v", *got)
	}
	p.observe("Duration: 00:00:04.00")
	p.observe("time=00:00:01.00")
	if !reflect.DeepEqual(*got, []int{25}) {
		t.Fatalf("published %v, want [25]", *got)
	}
}

func TestProgressExtractorSuppressesDuplicatesAllowsRegression(t *testing.T) {
	p, got := collect()
	p.observe("Duration: 01:00:00.00")
	for _, line := range []string{
		"time=00:06:00.00",
		"time=00:06:00.50",
		"time=00:12:00.00",
		"time=00:11:00.00",
		"time=00:11:00.00",
	} {
		p.observe(line)
	}
	want := []int{10, 20, 18}
	if !reflect.DeepEqual(*got, want) {
		t.Fatalf("published %v, want %v", *got, want)
	}
}

func TestProgressExtractorIgnoresNA(t *testing.T) {
	p, got := collect()
	p.observe("Duration: N/A, bitrate: N/A")
	p.observe("time=N/A bitrate=N/A")
	if len(*got) != 0 {
		t.Fatalf("expected nothing published, got %v", *got)
	}
}

func TestTimestampSeconds(t *testing.T) {
	if got := timestampSeconds([]string{"01", "02", "03", "50"}); got != 3723.5 {
		t.Fatalf("timestampSeconds = %v, want 3723.5", got)
	}
	if got := timestampSeconds([]string{"01"}); got != 0 {
		t.Fatalf("timestampSeconds short input = %v", got)
	}
}
