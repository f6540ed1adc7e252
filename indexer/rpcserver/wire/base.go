package wire

import (
	"github.com/sat20-labs/cohortd/indexer/common"
	base_indexer "github.com/sat20-labs/cohortd/indexer/indexer/base"
)

type BaseResp struct {
	Code int    `json:"code" example:"0"`
	Msg  string `json:"msg" example:"ok"`
}

func OK() BaseResp {
	return BaseResp{Code: 0, Msg: "ok"}
}

type HealthStatusResp struct {
	Status    string `json:"status" example:"ok"`
	Version   string `json:"version" example:"0.2.1"`
	BaseDBVer string `json:"basedbver" example:"3.2.4"`
}

type BestHeightResp struct {
	BaseResp
	Data map[string]int `json:"data" example:"height:600000"`
}

type StatsResp struct {
	BaseResp
	Data *base_indexer.SyncStats `json:"data"`
}

type CohortNamesResp struct {
	BaseResp
	Total int      `json:"total"`
	Data  []string `json:"data"`
}

type CohortResp struct {
	BaseResp
	Data *base_indexer.CohortSummary `json:"data"`
}

type PercentileData struct {
	Name       string         `json:"name"`
	Percentile float64        `json:"percentile"`
	Price      common.Dollars `json:"price"`
}

type PercentileResp struct {
	BaseResp
	Data *PercentileData `json:"data"`
}

type BlockStatsResp struct {
	BaseResp
	Data *common.BlockStats `json:"data"`
}

type AddressData struct {
	Type        string         `json:"type"`
	TypeIndex   uint32         `json:"typeIndex"`
	Empty       bool           `json:"empty"`
	Balance     int64          `json:"balance"`
	Received    int64          `json:"received"`
	Sent        int64          `json:"sent"`
	UTXOCount   uint32         `json:"utxoCount"`
	RealizedCap common.Dollars `json:"realizedCap"`
}

type AddressResp struct {
	BaseResp
	Data *AddressData `json:"data"`
}
