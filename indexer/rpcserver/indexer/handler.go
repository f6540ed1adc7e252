package indexer

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sat20-labs/cohortd/indexer/common"
	"github.com/sat20-labs/cohortd/indexer/rpcserver/wire"
	shareIndexer "github.com/sat20-labs/cohortd/indexer/share/indexer"
)

type Handle struct {
	model *Model
}

func NewHandle(indexer shareIndexer.Indexer) *Handle {
	return &Handle{
		model: NewModel(indexer),
	}
}

// @Summary Health Check
// @Description Check the health status of the service
// @Tags cohortd
// @Produce json
// @Success 200 {object} wire.HealthStatusResp "Successful response"
// @Router /health [get]
func (s *Handle) getHealth(c *gin.Context) {
	rsp := &wire.HealthStatusResp{
		Status:  "ok",
		Version: common.COHORTD_VERSION,
		BaseDBVer: fmt.Sprintf("%d.%d.%d",
			common.ENTITY_DB_VERSION, common.SERIES_DB_VERSION, common.COHORT_DB_VERSION),
	}

	tip := s.model.indexer.GetChainTip()
	sync := s.model.indexer.GetSyncHeight()
	code := 200
	if tip != sync && tip != sync+1 {
		code = 201
		rsp.Status = "syncing"
	}

	c.JSON(code, rsp)
}

// @Summary Get the flushed height
// @Description the last height whose cohorts are durable
// @Tags cohortd
// @Produce json
// @Success 200 {object} wire.BestHeightResp "Successful response"
// @Router /height [get]
func (s *Handle) getBestHeight(c *gin.Context) {
	resp := &wire.BestHeightResp{
		BaseResp: wire.OK(),
		Data:     map[string]int{"height": s.model.GetSyncHeight()},
	}
	c.JSON(http.StatusOK, resp)
}

// @Summary Get the sync status
// @Tags cohortd
// @Produce json
// @Success 200 {object} wire.StatsResp "Successful response"
// @Router /stats [get]
func (s *Handle) getStats(c *gin.Context) {
	resp := &wire.StatsResp{
		BaseResp: wire.OK(),
		Data:     s.model.indexer.GetStats(),
	}
	c.JSON(http.StatusOK, resp)
}

// @Summary List the cohorts
// @Description names of every cohort, composites included
// @Tags cohortd.cohort
// @Produce json
// @Success 200 {object} wire.CohortNamesResp "Successful response"
// @Router /cohorts [get]
func (s *Handle) getCohorts(c *gin.Context) {
	names := s.model.indexer.CohortNames()
	resp := &wire.CohortNamesResp{
		BaseResp: wire.OK(),
		Total:    len(names),
		Data:     names,
	}
	c.JSON(http.StatusOK, resp)
}

// @Summary Get a cohort
// @Description supply, realized and unrealized figures of a cohort at the flushed height
// @Tags cohortd.cohort
// @Produce json
// @Param name path string true "cohort name, e.g. utxo_age_above_1d"
// @Success 200 {object} wire.CohortResp "Successful response"
// @Router /cohort/{name} [get]
func (s *Handle) getCohort(c *gin.Context) {
	resp := &wire.CohortResp{
		BaseResp: wire.OK(),
	}

	result, err := s.model.indexer.GetCohort(c.Param("name"))
	if err != nil {
		resp.Code = -1
		resp.Msg = err.Error()
	} else {
		resp.Data = result
	}
	c.JSON(http.StatusOK, resp)
}

// @Summary Get a cost basis percentile
// @Description the price below which the given share of the cohort supply was acquired
// @Tags cohortd.cohort
// @Produce json
// @Param name path string true "cohort name"
// @Param p path string true "percentile, 50% or 0.5"
// @Success 200 {object} wire.PercentileResp "Successful response"
// @Router /cohort/{name}/percentile/{p} [get]
func (s *Handle) getPercentile(c *gin.Context) {
	resp := &wire.PercentileResp{
		BaseResp: wire.OK(),
	}

	result, err := s.model.getPercentile(c.Param("name"), c.Param("p"))
	if err != nil {
		resp.Code = -1
		resp.Msg = err.Error()
	} else {
		resp.Data = result
	}
	c.JSON(http.StatusOK, resp)
}

// @Summary Get the block stats
// @Tags cohortd
// @Produce json
// @Param height path int true "height"
// @Success 200 {object} wire.BlockStatsResp "Successful response"
// @Router /block/{height} [get]
func (s *Handle) getBlockStats(c *gin.Context) {
	resp := &wire.BlockStatsResp{
		BaseResp: wire.OK(),
	}

	result, err := s.model.getBlockStats(c.Param("height"))
	if err != nil {
		resp.Code = -1
		resp.Msg = err.Error()
	} else {
		resp.Data = result
	}
	c.JSON(http.StatusOK, resp)
}

// @Summary Get an address
// @Tags cohortd.address
// @Produce json
// @Param type path string true "script class, e.g. witness_v1_taproot"
// @Param index path int true "type index"
// @Success 200 {object} wire.AddressResp "Successful response"
// @Router /address/{type}/{index} [get]
func (s *Handle) getAddress(c *gin.Context) {
	resp := &wire.AddressResp{
		BaseResp: wire.OK(),
	}

	result, err := s.model.getAddress(c.Param("type"), c.Param("index"))
	if err != nil {
		resp.Code = -1
		resp.Msg = err.Error()
	} else {
		resp.Data = result
	}
	c.JSON(http.StatusOK, resp)
}
