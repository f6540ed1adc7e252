package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"

	"github.com/jessevdk/go-flags"
	"github.com/sat20-labs/cohortd/indexer"
	"github.com/sat20-labs/cohortd/indexer/common"
	mgr "github.com/sat20-labs/cohortd/indexer/indexer"
	"github.com/sat20-labs/cohortd/indexer/share/bitcoind"
	"github.com/sat20-labs/cohortd/indexer/share/price"
)

const bookDirname = "book"

// cohortdMain is the real main function for cohortd.  It is necessary to work
// around the fact that deferred functions do not run when os.Exit() is called.
func cohortdMain() error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	// Get a channel that will be closed when a shutdown signal has been
	// triggered either from an OS signal such as SIGINT (Ctrl+C) or from
	// another subsystem such as the RPC server.
	interrupt := interruptListener()
	defer cohdLog.Info("Shutdown complete")

	cohdLog.Infof("Version %s, chain %s", common.COHORTD_VERSION, cfg.Chain)

	params, err := common.ChainParams(cfg.Chain)
	if err != nil {
		return err
	}

	client, err := bitcoind.NewRpcClient(cfg.BitcoindHost, cfg.BitcoindUser, cfg.BitcoindPass)
	if err != nil {
		return err
	}
	defer client.Shutdown()
	if err := bitcoind.CheckNetwork(client, params); err != nil {
		return err
	}

	source, err := bitcoind.NewSource(client, filepath.Join(cfg.DataDir, bookDirname))
	if err != nil {
		return fmt.Errorf("open block book: %w", err)
	}
	defer source.Close()

	var prices common.PriceSource = price.Unpriced{}
	if cfg.PriceFile != "" {
		prices, err = price.Load(cfg.PriceFile)
		if err != nil {
			return err
		}
	} else {
		cohdLog.Warn("no price file, dollar figures stay zero")
	}

	if interruptRequested(interrupt) {
		return nil
	}

	indexerMgr, err := indexer.NewIndexerMgr(&mgr.Config{
		DataDir:         cfg.DataDir,
		EntityDBType:    cfg.EntityDB,
		SeriesDBType:    cfg.SeriesDB,
		CohortDBType:    cfg.CohortDB,
		KeepHistory:     cfg.KeepHistory,
		PeriodFlushToDB: cfg.FlushInterval,
		MaxIndexHeight:  cfg.MaxIndexHeight,
		Workers:         cfg.Workers,
		Source:          source,
		Prices:          prices,
	}, interrupt)
	if err != nil {
		return err
	}

	_, err = indexer.InitRpcService(&indexer.RpcConfig{
		Disable: cfg.DisableRPC,
		Addr:    cfg.RPCListen,
		Proxy:   cfg.RPCProxy,
		LogPath: cfg.RPCLogDir,
	}, cfg.MaxIndexHeight, indexerMgr)
	if err != nil {
		cohdLog.Errorf("rpc server: %v", err)
		indexerMgr.Close()
		return err
	}

	indexerMgr.Start()
	indexerMgr.Wait()
	return nil
}

func main() {
	// Block and transaction processing can cause bursty allocations.  This
	// limits the garbage collector from excessively overallocating during
	// bursts.
	debug.SetGCPercent(10)

	if err := cohortdMain(); err != nil {
		if e, ok := err.(*flags.Error); !ok || e.Type != flags.ErrHelp {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
