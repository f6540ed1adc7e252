package indexer

import (
	"github.com/sat20-labs/cohortd/indexer/common"
	"github.com/sat20-labs/cohortd/indexer/indexer"
	"github.com/sat20-labs/cohortd/indexer/rpcserver"
	shareIndexer "github.com/sat20-labs/cohortd/indexer/share/indexer"
)

var _ shareIndexer.Indexer = (*indexer.IndexerMgr)(nil)

// RpcConfig is the query server part of the daemon configuration.
type RpcConfig struct {
	Disable bool
	Addr    string
	Proxy   string
	LogPath string
}

// NewIndexerMgr opens the stores, recovers them to a consistent height and
// shares the manager with the rpc layer.
func NewIndexerMgr(cfg *indexer.Config, interrupt <-chan struct{}) (*indexer.IndexerMgr, error) {
	indexerMgr := indexer.NewIndexerMgr(cfg, interrupt)
	if err := indexerMgr.Init(); err != nil {
		common.Log.Errorf("IndexerMgr.Init failed. %v", err)
		return nil, err
	}
	shareIndexer.InitIndexer(indexerMgr)
	return indexerMgr, nil
}

func InitRpcService(conf *RpcConfig, maxIndexHeight int, indexerMgr *indexer.IndexerMgr) (*rpcserver.Rpc, error) {
	rpc := rpcserver.NewRpc(indexerMgr)
	// 编译数据库时不启动rpc
	if conf.Disable || maxIndexHeight > 0 {
		common.Log.Info("rpc disabled")
		return rpc, nil
	}
	if err := rpc.Start(conf.Addr, conf.Proxy, conf.LogPath); err != nil {
		return rpc, err
	}
	common.Log.Info("rpc started")
	return rpc, nil
}
