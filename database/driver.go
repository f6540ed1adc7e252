package database

import (
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"
)

// Op is a single put or delete applied by Backend.Write.
type Op struct {
	Key    []byte
	Value  []byte
	Delete bool
}

// Backend is the raw key/value engine under a DB. Every driver keeps keys in
// byte order so prefix scans are ascending.
type Backend interface {
	// Get returns a copy of the value or ErrNotFound.
	Get(key []byte) ([]byte, error)

	// Scan calls fn for every key with the given prefix that is >= start,
	// in ascending order. Key and value are copies.
	Scan(prefix, start []byte, fn func(key, value []byte) error) error

	// Write applies ops in order. Drivers apply the whole slice atomically
	// when the engine supports it.
	Write(ops []Op) error

	// Compact reclaims space. It is optional work and may be a no-op.
	Compact() error

	Close() error
}

// Driver defines a structure for backend drivers to use when they registered
// themselves as a backend which implements the Backend interface.
type Driver struct {
	// DbType is the identifier used to uniquely identify a specific
	// database driver.  There can be only one driver with the same name.
	DbType string

	// Open is the function that will be invoked with the path of the
	// database directory when the database is opened.
	Open func(path string) (Backend, error)

	// UseLogger uses a specified Logger to output package logging info.
	UseLogger func(logger *logrus.Entry)
}

// driverList holds all of the registered database backends.
var drivers = make(map[string]*Driver)

// RegisterDriver adds a backend database driver to available interfaces.
// ErrDbTypeRegistered will be returned if the database type for the driver has
// already been registered.
func RegisterDriver(driver Driver) error {
	if _, exists := drivers[driver.DbType]; exists {
		return fmt.Errorf("driver %q is already registered: %w",
			driver.DbType, ErrDbTypeRegistered)
	}

	drivers[driver.DbType] = &driver
	return nil
}

// SupportedDrivers returns a slice of strings that represent the database
// drivers that have been registered and are therefore supported.
func SupportedDrivers() []string {
	supportedDBs := make([]string, 0, len(drivers))
	for _, drv := range drivers {
		supportedDBs = append(supportedDBs, drv.DbType)
	}
	sort.Strings(supportedDBs)
	return supportedDBs
}

func openBackend(dbType, path string) (Backend, error) {
	drv, exists := drivers[dbType]
	if !exists {
		return nil, fmt.Errorf("driver %q is not registered: %w", dbType,
			ErrDbUnknownType)
	}
	return drv.Open(path)
}

func init() {
	for _, drv := range []Driver{badgerDriver, boltDriver, leveldbDriver} {
		if err := RegisterDriver(drv); err != nil {
			panic(fmt.Sprintf("failed to register database driver '%s': %v",
				drv.DbType, err))
		}
	}
}
