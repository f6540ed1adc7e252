package cohort

import (
	"sort"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
)

// Amount buckets are lower-inclusive, upper-exclusive: a balance equal to a
// breakpoint belongs to the bucket starting there. A zero balance has no
// bucket.
var amountBreakpoints = []btcutil.Amount{
	1,
	10,
	100,
	1_000,
	10_000,
	100_000,
	1_000_000,
	10_000_000,
	btcutil.SatoshiPerBitcoin,
	10 * btcutil.SatoshiPerBitcoin,
	100 * btcutil.SatoshiPerBitcoin,
	1_000 * btcutil.SatoshiPerBitcoin,
	10_000 * btcutil.SatoshiPerBitcoin,
	100_000 * btcutil.SatoshiPerBitcoin,
}

var amountLabels = []string{
	"1sat", "10sats", "100sats", "1ksats", "10ksats", "100ksats", "1msats",
	"10msats", "1btc", "10btc", "100btc", "1kbtc", "10kbtc", "100kbtc",
}

// NumAmountBuckets is the number of buckets on the amount axis.
var NumAmountBuckets = len(amountBreakpoints)

// NoBucket is the bucket of a zero balance.
const NoBucket = -1

// BucketOf maps a balance to its amount bucket.
func BucketOf(amount btcutil.Amount) int {
	return sort.Search(len(amountBreakpoints), func(i int) bool {
		return amountBreakpoints[i] > amount
	}) - 1
}

// BucketRange returns the bounds of bucket b. hi is zero for the last bucket.
func BucketRange(b int) (lo, hi btcutil.Amount) {
	lo = amountBreakpoints[b]
	if b+1 < len(amountBreakpoints) {
		hi = amountBreakpoints[b+1]
	}
	return lo, hi
}

func bucketName(b int) string {
	if b+1 < len(amountLabels) {
		return amountLabels[b] + "_" + amountLabels[b+1]
	}
	return amountLabels[b] + "+"
}

const secondsPerDay = 24 * 60 * 60

// Age bands in days, lower-inclusive.
var ageBoundaries = []int64{0, 1, 7, 30, 90, 180, 365, 730, 1095, 1825, 2555, 3650, 5475}

var ageLabels = []string{
	"0d", "1d", "1w", "1m", "3m", "6m", "1y", "2y", "3y", "5y", "7y", "10y", "15y",
}

var NumAgeBands = len(ageBoundaries)

// ShortTermDays separates short term from long term holders.
const ShortTermDays = 155

const (
	TermShort = iota
	TermLong
	NumTerms
)

var termNames = []string{"short", "long"}

// AgeBandOf maps an age in seconds to its band. Negative ages, from clock
// skew between blocks, count as zero.
func AgeBandOf(ageSeconds int64) int {
	days := max(ageSeconds, 0) / secondsPerDay
	return sort.Search(len(ageBoundaries), func(i int) bool {
		return ageBoundaries[i] > days
	}) - 1
}

func TermOf(ageSeconds int64) int {
	if max(ageSeconds, 0)/secondsPerDay < ShortTermDays {
		return TermShort
	}
	return TermLong
}

func ageBandName(b int) string {
	if b+1 < len(ageLabels) {
		return ageLabels[b] + "_" + ageLabels[b+1]
	}
	return ageLabels[b] + "+"
}

// AgeBoundarySeconds lists every age, in seconds, at which a UTXO changes
// band or term, ascending.
func AgeBoundarySeconds() []int64 {
	seen := map[int64]bool{ShortTermDays: true}
	for _, d := range ageBoundaries[1:] {
		seen[d] = true
	}
	boundaries := make([]int64, 0, len(seen))
	for d := range seen {
		boundaries = append(boundaries, d*secondsPerDay)
	}
	sort.Slice(boundaries, func(i, j int) bool { return boundaries[i] < boundaries[j] })
	return boundaries
}

var typeNames = map[txscript.ScriptClass]string{
	txscript.NonStandardTy:         "nonstandard",
	txscript.PubKeyTy:              "p2pk",
	txscript.PubKeyHashTy:          "p2pkh",
	txscript.WitnessV0PubKeyHashTy: "p2wpkh",
	txscript.ScriptHashTy:          "p2sh",
	txscript.WitnessV0ScriptHashTy: "p2wsh",
	txscript.MultiSigTy:            "p2ms",
	txscript.NullDataTy:            "opreturn",
	txscript.WitnessV1TaprootTy:    "p2tr",
	txscript.WitnessUnknownTy:      "witness_unknown",
}

func typeName(class txscript.ScriptClass) string {
	if name, ok := typeNames[class]; ok {
		return name
	}
	return class.String()
}
