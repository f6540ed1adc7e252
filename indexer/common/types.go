package common

import (
	"math"

	"github.com/btcsuite/btcd/btcutil"
)

const (
	DB_KEY_LOADED      = "la"  // index -> LoadedAddressData
	DB_KEY_EMPTY       = "ea"  // index -> EmptyAddressData
	DB_KEY_INDIRECTION = "ai"  // type|typeindex -> partition|index
	DB_KEY_UTXO        = "u"   // output index -> UtxoEntry
	DB_KEY_TXOUTPUT    = "txo" // tx index -> first output index
	DB_KEY_BLOCKSTATS  = "b"   // height -> BlockStats
	DB_KEY_CHAINSTATE  = "cs"  // height -> BlockState
	DB_KEY_COHORT      = "c-"  // cohort name -> cohort.State
)

const (
	ENTITY_DB_VERSION = 3
	SERIES_DB_VERSION = 2
	COHORT_DB_VERSION = 4

	COHORTD_VERSION = "0.2.1"
)

// Dollars is a USD amount or price.
type Dollars float64

// Cents is a price rounded to the cent, the key unit of cost-basis
// distributions.
type Cents int64

func (d Dollars) Cents() Cents {
	return Cents(math.Round(float64(d) * 100))
}

func (c Cents) Dollars() Dollars {
	return Dollars(c) / 100
}

// Mul returns the USD value of amount at price d.
func (d Dollars) Mul(amount btcutil.Amount) Dollars {
	return d * Dollars(amount.ToBTC())
}

// Div returns the per-coin price of a USD value spread over amount.
func (d Dollars) Div(amount btcutil.Amount) Dollars {
	if amount == 0 {
		return 0
	}
	return d / Dollars(amount.ToBTC())
}

// Supply is an amount of sats held in a number of UTXOs.
type Supply struct {
	Value     btcutil.Amount `json:"value"`
	UTXOCount uint64         `json:"utxoCount"`
}

func (s *Supply) Add(o Supply) {
	s.Value += o.Value
	s.UTXOCount += o.UTXOCount
}

// Sub panics on underflow; callers check the invariant first so the panic
// only fires on a corrupted aggregate.
func (s *Supply) Sub(o Supply) {
	if s.Value < o.Value || s.UTXOCount < o.UTXOCount {
		Log.Panicf("supply underflow: %v - %v", *s, o)
	}
	s.Value -= o.Value
	s.UTXOCount -= o.UTXOCount
}

func (s Supply) IsZero() bool {
	return s.Value == 0 && s.UTXOCount == 0
}

// BlockStats are the height indexed series written once per block.
type BlockStats struct {
	Height            int            `json:"height"`
	Hash              string         `json:"hash"`
	Timestamp         int64          `json:"timestamp"`
	Price             Dollars        `json:"price"`
	FirstTxIndex      uint64         `json:"firstTxIndex"`
	FirstOutputIndex  uint64         `json:"firstOutputIndex"`
	TxCount           int            `json:"txCount"`
	InputCount        int            `json:"inputCount"`
	OutputCount       int            `json:"outputCount"`
	Fees              btcutil.Amount `json:"fees"`
	Subsidy           btcutil.Amount `json:"subsidy"`
	Supply            btcutil.Amount `json:"supply"`
	UTXOCount         uint64         `json:"utxoCount"`
	UnspendableSupply btcutil.Amount `json:"unspendableSupply"`
	CoinDaysDestroyed float64        `json:"coinDaysDestroyed"`
	NewAddresses      int            `json:"newAddresses"`
	Reactivated       int            `json:"reactivated"`
	Emptied           int            `json:"emptied"`
}

// BlockState is what is left unspent of the outputs created at one height.
type BlockState struct {
	Supply    Supply
	Price     Dollars
	Timestamp int64
}
