package indexer

import (
	"path/filepath"

	"github.com/sat20-labs/cohortd/database"
	"github.com/sat20-labs/cohortd/indexer/common"
)

func openDB(dbType, path string, keepHistory int) (*database.DB, error) {
	db, err := database.Open(dbType, path, keepHistory)
	if err != nil {
		return nil, err
	}
	common.Log.Infof("InitDB-> start db gc for %s", path)
	if err := db.Compact(); err != nil {
		common.Log.Warnf("InitDB-> gc of %s failed: %v", path, err)
	}
	return db, nil
}

// initDB opens the entity, series and cohort databases, each with the
// driver configured for it.
func (p *IndexerMgr) initDB() (err error) {
	common.Log.Info("InitDB-> start...")

	p.entityDB, err = openDB(p.cfg.EntityDBType, filepath.Join(p.dbDir, "entity"), p.cfg.KeepHistory)
	if err != nil {
		return err
	}
	p.seriesDB, err = openDB(p.cfg.SeriesDBType, filepath.Join(p.dbDir, "series"), p.cfg.KeepHistory)
	if err != nil {
		p.entityDB.Close()
		return err
	}
	p.cohortDB, err = openDB(p.cfg.CohortDBType, filepath.Join(p.dbDir, "cohort"), p.cfg.KeepHistory)
	if err != nil {
		p.entityDB.Close()
		p.seriesDB.Close()
		return err
	}
	return nil
}

func (p *IndexerMgr) dbs() []*database.DB {
	return []*database.DB{p.entityDB, p.seriesDB, p.cohortDB}
}
