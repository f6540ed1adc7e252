package bitcoind

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"
	"github.com/btcsuite/btcd/wire"
	"github.com/sat20-labs/cohortd/indexer/common"
)

// chainClient is the part of rpcclient.Client the source needs.
type chainClient interface {
	GetBlockCount() (int64, error)
	GetBlockHash(blockHeight int64) (*chainhash.Hash, error)
	GetBlock(blockHash *chainhash.Hash) (*wire.MsgBlock, error)
}

// NewRpcClient connects to a bitcoind node. bitcoind only speaks http post,
// so there are no block notifications and the indexer polls.
func NewRpcClient(host, user, passwd string) (*rpcclient.Client, error) {
	connCfg := &rpcclient.ConnConfig{
		Host:         host,
		User:         user,
		Pass:         passwd,
		HTTPPostMode: true,
		DisableTLS:   true,
	}
	client, err := rpcclient.New(connCfg, nil)
	if err != nil {
		common.Log.Errorf("rpcclient.New failed. %v", err)
		return nil, err
	}

	blockCount, err := client.GetBlockCount()
	if err != nil {
		common.Log.Errorf("client.GetBlockCount failed. %v", err)
		client.Shutdown()
		return nil, err
	}
	common.Log.Infof("rpc client connected to %s, block count: %d", host, blockCount)
	return client, nil
}

// CheckNetwork fails when the node serves another chain than params.
func CheckNetwork(client chainClient, params *chaincfg.Params) error {
	hash, err := client.GetBlockHash(0)
	if err != nil {
		return err
	}
	if !hash.IsEqual(params.GenesisHash) {
		return fmt.Errorf("node genesis %s is not %s genesis %s", hash, params.Name, params.GenesisHash)
	}
	return nil
}
