package indexer

import (
	"github.com/gin-gonic/gin"
	shareIndexer "github.com/sat20-labs/cohortd/indexer/share/indexer"
)

type Service struct {
	handle *Handle
}

func NewService(indexer shareIndexer.Indexer) *Service {
	return &Service{
		handle: NewHandle(indexer),
	}
}

func (s *Service) InitRouter(r *gin.Engine, proxy string) {

	r.GET(proxy+"/health", s.handle.getHealth)

	// 已落盘的高度
	r.GET(proxy+"/height", s.handle.getBestHeight)
	r.GET(proxy+"/stats", s.handle.getStats)
	r.GET(proxy+"/block/:height", s.handle.getBlockStats)

	// cohort
	r.GET(proxy+"/cohorts", s.handle.getCohorts)
	r.GET(proxy+"/cohort/:name", s.handle.getCohort)
	r.GET(proxy+"/cohort/:name/percentile/:p", s.handle.getPercentile)

	// address, type格式：txscript.ScriptClass.String()
	r.GET(proxy+"/address/:type/:index", s.handle.getAddress)
}
