package normalize

import (
	"regexp"
	"strconv"
	"strings"
)

var salaryNumberRe = regexp.MustCompile(`(\d[\d,]*(?:\.\d+)?)\s*([kK])?\b`)

// ParseSalary extracts a floor and ceiling from free text such as
// "$120,000 - $150,000 a year", "From $45 an hour" or "100k-130k".
// Either bound may be nil.
func ParseSalary(text string) (min, max *float64) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}

	var nums []float64
	for _, m := range salaryNumberRe.FindAllStringSubmatch(text, -1) {
		v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
		if err != nil || v <= 0 {
			continue
		}
		if m[2] != "" {
			v *= 1000
		}
		nums = append(nums, v)
		if len(nums) == 2 {
			break
		}
	}

	lower := strings.ToLower(text)
	switch len(nums) {
	case 0:
		return nil, nil
	case 1:
		v := nums[0]
		switch {
		case strings.Contains(lower, "up to"):
			return nil, &v
		case strings.Contains(lower, "from") || strings.Contains(lower, "starting"):
			return &v, nil
		default:
			lo, hi := v, v
			return &lo, &hi
		}
	default:
		lo, hi := nums[0], nums[1]
		if lo > hi {
			lo, hi = hi, lo
		}
		return &lo, &hi
	}
}
