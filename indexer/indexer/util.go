package indexer

import (
	"fmt"
	"math"
	"regexp"
	"runtime"
	"strconv"
	"strings"
)

// memory util
func GetSysMb() uint64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return bToMb(m.Sys)
}

func GetAlloc() uint64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return bToMb(m.Alloc)
}

func bToMb(b uint64) uint64 {
	return b / 1024 / 1024
}

var fractionRegex = regexp.MustCompile(`^\d+(\.\d{0,4})?$`)

// ParsePercentile accepts "25%", "12.5%" or a fraction like "0.25" and
// returns the fraction.
func ParsePercentile(str string) (float64, error) {
	str2 := strings.TrimSpace(str)

	var f float64
	var err error
	if strings.HasSuffix(str2, "%") {
		f, err = strconv.ParseFloat(strings.TrimSuffix(str2, "%"), 64)
		f /= 100
	} else {
		if !fractionRegex.MatchString(str2) {
			return 0, fmt.Errorf("invalid format %s", str)
		}
		f, err = strconv.ParseFloat(str2, 64)
	}
	if err != nil {
		return 0, fmt.Errorf("invalid format %s: %w", str, err)
	}
	if math.IsNaN(f) || f < 0 || f > 1 {
		return 0, fmt.Errorf("invalid format %s", str)
	}
	return f, nil
}
