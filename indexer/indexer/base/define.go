package base

// Results of a sync pass. After SYNC_REORG the fork height is read with
// ReorgHeight, since a fork can sit at height 0.
const (
	SYNC_REORG          = 1
	SYNC_OK             = 0
	SYNC_STOPPED        = -1
	SYNC_FETCH_FAILED   = -2
	SYNC_PROCESS_FAILED = -3
)

type SyncStats struct {
	ChainTip       int    `json:"chainTip"`
	SyncHeight     int    `json:"syncHeight"`
	SyncBlockHash  string `json:"syncBlockHash"`
	ReorgsDetected []int  `json:"reorgsDetected"`
	Supply         int64  `json:"supply"`
	UtxoCount      uint64 `json:"utxoCount"`
	AddressCount   uint64 `json:"addressCount"`
}

func (p *SyncStats) Clone() *SyncStats {
	c := *p
	c.ReorgsDetected = make([]int, len(p.ReorgsDetected))
	copy(c.ReorgsDetected, p.ReorgsDetected)
	return &c
}
