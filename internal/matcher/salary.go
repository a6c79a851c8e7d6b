package matcher

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	salaryRangeRe  = regexp.MustCompile(`(\d+\.?\d*)\s*[kK]?\s*[-–to]+\s*(\d+\.?\d*)\s*[kK]?`)
	salarySingleRe = regexp.MustCompile(`(\d+\.?\d*)\s*[kK]?`)
	salaryNoise    = strings.NewReplacer(",", "", "$", "")
)

// ParseSalary extracts a (min, max) pair from free text such as
// "$80,000 - $120,000", "80-120k" or "150K". Values under 1000 are read as
// thousands. Both results are nil when no number is present.
func ParseSalary(text string) (lo, hi *int) {
	if text == "" {
		return nil, nil
	}
	text = strings.TrimSpace(salaryNoise.Replace(text))

	if m := salaryRangeRe.FindStringSubmatch(text); m != nil {
		low, high := thousands(m[1]), thousands(m[2])
		return &low, &high
	}
	if m := salarySingleRe.FindStringSubmatch(text); m != nil {
		v := thousands(m[1])
		return &v, &v
	}
	return nil, nil
}

func thousands(s string) int {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	if v < 1000 {
		v *= 1000
	}
	return int(v)
}
