package indexer

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/btcsuite/btcd/txscript"
	"github.com/sat20-labs/cohortd/indexer/common"
	mgr "github.com/sat20-labs/cohortd/indexer/indexer"
	"github.com/sat20-labs/cohortd/indexer/indexer/entity"
	"github.com/sat20-labs/cohortd/indexer/rpcserver/wire"
	shareIndexer "github.com/sat20-labs/cohortd/indexer/share/indexer"
)

var ErrUnknownAddress = errors.New("unknown address")

type Model struct {
	indexer shareIndexer.Indexer
}

func NewModel(indexer shareIndexer.Indexer) *Model {
	return &Model{
		indexer: indexer,
	}
}

func (s *Model) GetSyncHeight() int {
	return s.indexer.GetSyncHeight()
}

func (s *Model) getPercentile(name, p string) (*wire.PercentileData, error) {
	percentile, err := mgr.ParsePercentile(p)
	if err != nil {
		return nil, err
	}
	price, err := s.indexer.GetCohortPercentile(name, percentile)
	if err != nil {
		return nil, err
	}
	return &wire.PercentileData{Name: name, Percentile: percentile, Price: price}, nil
}

func (s *Model) getBlockStats(h string) (*common.BlockStats, error) {
	height, err := strconv.ParseInt(h, 10, 32)
	if err != nil {
		return nil, err
	}
	return s.indexer.GetBlockStats(int(height))
}

// parseScriptClass accepts the names txscript gives the address classes,
// such as "pubkeyhash" or "witness_v1_taproot".
func parseScriptClass(name string) (txscript.ScriptClass, error) {
	for _, class := range common.AddressTypes {
		if class.String() == name {
			return class, nil
		}
	}
	return 0, fmt.Errorf("%s is not an address type", name)
}

func (s *Model) getAddress(typeName, index string) (*wire.AddressData, error) {
	class, err := parseScriptClass(typeName)
	if err != nil {
		return nil, err
	}
	typeIndex, err := strconv.ParseUint(index, 10, 32)
	if err != nil {
		return nil, err
	}
	key := entity.AddressKey{Type: class, TypeIndex: uint32(typeIndex)}

	loaded, empty, err := s.indexer.GetAddress(key)
	if err != nil {
		return nil, err
	}
	data := &wire.AddressData{Type: typeName, TypeIndex: key.TypeIndex}
	switch {
	case loaded != nil:
		data.Balance = int64(loaded.Balance())
		data.Received = int64(loaded.Received)
		data.Sent = int64(loaded.Sent)
		data.UTXOCount = loaded.UTXOCount
		data.RealizedCap = loaded.RealizedCap
	case empty != nil:
		data.Empty = true
		data.Received = int64(empty.Transfered)
		data.Sent = int64(empty.Transfered)
	default:
		return nil, fmt.Errorf("%s: %w", key, ErrUnknownAddress)
	}
	return data, nil
}
