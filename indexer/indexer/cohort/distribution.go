package cohort

import (
	"sort"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/sat20-labs/cohortd/indexer/common"
)

// Distribution maps an acquisition price to the amount held at that price.
type Distribution struct {
	Amounts map[common.Cents]btcutil.Amount
	Total   btcutil.Amount
}

func NewDistribution() *Distribution {
	return &Distribution{Amounts: make(map[common.Cents]btcutil.Amount)}
}

func (d *Distribution) Clone() *Distribution {
	c := &Distribution{
		Amounts: make(map[common.Cents]btcutil.Amount, len(d.Amounts)),
		Total:   d.Total,
	}
	for k, v := range d.Amounts {
		c.Amounts[k] = v
	}
	return c
}

func (d *Distribution) Add(price common.Cents, amount btcutil.Amount) {
	if amount == 0 {
		return
	}
	d.Amounts[price] += amount
	d.Total += amount
}

// CanRemove reports whether amount is held at price.
func (d *Distribution) CanRemove(price common.Cents, amount btcutil.Amount) bool {
	return amount == 0 || d.Amounts[price] >= amount
}

func (d *Distribution) Remove(price common.Cents, amount btcutil.Amount) {
	if amount == 0 {
		return
	}
	have := d.Amounts[price]
	if have < amount {
		common.Log.Panicf("distribution underflow at %v: removing %v from %v", price, amount, have)
	}
	if have == amount {
		delete(d.Amounts, price)
	} else {
		d.Amounts[price] = have - amount
	}
	d.Total -= amount
}

// Merge adds every amount of o.
func (d *Distribution) Merge(o *Distribution) {
	for k, v := range o.Amounts {
		d.Add(k, v)
	}
}

func (d *Distribution) prices() []common.Cents {
	prices := make([]common.Cents, 0, len(d.Amounts))
	for p := range d.Amounts {
		prices = append(prices, p)
	}
	sort.Slice(prices, func(i, j int) bool { return prices[i] < prices[j] })
	return prices
}

// Percentile returns the lowest price at which at least p (0..1) of the
// total is held at or below.
func (d *Distribution) Percentile(p float64) common.Dollars {
	if d.Total == 0 {
		return 0
	}
	p = min(max(p, 0), 1)
	target := btcutil.Amount(p * float64(d.Total))
	prices := d.prices()
	var cum btcutil.Amount
	for _, price := range prices {
		cum += d.Amounts[price]
		if cum >= target {
			return price.Dollars()
		}
	}
	return prices[len(prices)-1].Dollars()
}

// Unrealized splits the distribution around the current price.
type Unrealized struct {
	SupplyInProfit btcutil.Amount `json:"supplyInProfit"`
	SupplyInLoss   btcutil.Amount `json:"supplyInLoss"`
	Profit         common.Dollars `json:"profit"`
	Loss           common.Dollars `json:"loss"`
}

func (d *Distribution) Unrealized(price common.Dollars) Unrealized {
	var u Unrealized
	current := price.Cents()
	for p, amount := range d.Amounts {
		switch {
		case p < current:
			u.SupplyInProfit += amount
			u.Profit += (price - p.Dollars()).Mul(amount)
		case p > current:
			u.SupplyInLoss += amount
			u.Loss += (p.Dollars() - price).Mul(amount)
		}
	}
	return u
}
