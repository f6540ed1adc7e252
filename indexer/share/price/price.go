package price

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/sat20-labs/cohortd/indexer/common"
)

const dateLayout = "2006-01-02"

type dailyClose struct {
	day   time.Time
	price common.Dollars
}

// DailyCloses prices a block at the USD close of its UTC day. Days missing
// from the table take the last earlier close, blocks before the first day
// are unpriced.
type DailyCloses struct {
	closes []dailyClose
}

var _ common.PriceSource = (*DailyCloses)(nil)

// Load reads a JSON object of "YYYY-MM-DD": close.
func Load(path string) (*DailyCloses, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var table map[string]float64
	if err := json.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	p, err := New(table)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	common.Log.Infof("loaded %d daily closes from %s", len(p.closes), path)
	return p, nil
}

func New(table map[string]float64) (*DailyCloses, error) {
	p := &DailyCloses{closes: make([]dailyClose, 0, len(table))}
	for date, v := range table {
		day, err := time.Parse(dateLayout, date)
		if err != nil {
			return nil, err
		}
		if v < 0 {
			return nil, fmt.Errorf("negative close %v on %s", v, date)
		}
		p.closes = append(p.closes, dailyClose{day: day, price: common.Dollars(v)})
	}
	sort.Slice(p.closes, func(i, j int) bool {
		return p.closes[i].day.Before(p.closes[j].day)
	})
	return p, nil
}

func (p *DailyCloses) Price(_ int, timestamp time.Time) common.Dollars {
	day := timestamp.UTC().Truncate(24 * time.Hour)
	i := sort.Search(len(p.closes), func(i int) bool {
		return p.closes[i].day.After(day)
	})
	if i == 0 {
		return 0
	}
	return p.closes[i-1].price
}

// Unpriced is used when no price file is configured. Every dollar figure
// stays zero.
type Unpriced struct{}

func (Unpriced) Price(int, time.Time) common.Dollars {
	return 0
}
