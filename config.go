package main

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/jessevdk/go-flags"
	"github.com/sat20-labs/cohortd/database"
	"github.com/sat20-labs/cohortd/indexer/common"
)

const (
	defaultConfigFilename = "cohortd.conf"
	defaultDataDirname    = "data"
	defaultLogLevel       = "info"
	defaultLogDirname     = "logs"
	defaultLogFilename    = "cohortd"
	defaultFlushInterval  = 12
	defaultBitcoindHost   = "127.0.0.1:8332"
	defaultRPCListen      = "0.0.0.0:8005"
)

var (
	defaultHomeDir    = btcutil.AppDataDir("cohortd", false)
	defaultConfigFile = filepath.Join(defaultHomeDir, defaultConfigFilename)
	defaultDataDir    = filepath.Join(defaultHomeDir, defaultDataDirname)
	defaultLogDir     = filepath.Join(defaultHomeDir, defaultLogDirname)
)

// config defines the configuration options for cohortd.
type config struct {
	ShowVersion bool   `short:"V" long:"version" description:"Display version information and exit"`
	ConfigFile  string `short:"C" long:"configfile" description:"Path to configuration file"`
	DataDir     string `short:"b" long:"datadir" description:"Directory to store data"`
	LogDir      string `long:"logdir" description:"Directory to log output"`
	DebugLevel  string `short:"d" long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, fatal, panic} -- You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems -- Use show to list available subsystems"`

	Chain          string `long:"chain" description:"Chain served by the node {mainnet, testnet3, signet, regtest}"`
	FlushInterval  int    `long:"flushinterval" description:"Flush the stores every this many blocks"`
	KeepHistory    int    `long:"keephistory" description:"Undo records kept per column, bounds how deep a reorg can be rolled back"`
	MaxIndexHeight int    `long:"maxindexheight" description:"Stop indexing at this height, 0 for the chain tip. The rpc server is not started when set"`
	Workers        int    `long:"workers" description:"Size of the worker pool processing a block, 0 for the number of CPUs"`
	EntityDB       string `long:"entitydb" description:"Backend of the entity store" choice:"badger" choice:"leveldb" choice:"bolt"`
	SeriesDB       string `long:"seriesdb" description:"Backend of the height series" choice:"badger" choice:"leveldb" choice:"bolt"`
	CohortDB       string `long:"cohortdb" description:"Backend of the cohort states" choice:"badger" choice:"leveldb" choice:"bolt"`

	BitcoindHost string `long:"bitcoindhost" description:"Host:port of the bitcoind rpc server"`
	BitcoindUser string `long:"bitcoinduser" description:"Username for bitcoind rpc"`
	BitcoindPass string `long:"bitcoindpass" default-mask:"-" description:"Password for bitcoind rpc"`

	PriceFile string `long:"pricefile" description:"JSON file of daily USD closes, {\"YYYY-MM-DD\": close}"`

	RPCListen  string `long:"rpclisten" description:"Listen address of the query server"`
	RPCProxy   string `long:"rpcproxy" description:"Path prefix of every query route"`
	RPCLogDir  string `long:"rpclogdir" description:"Directory of the query access log, stdout only when empty"`
	DisableRPC bool   `long:"norpc" description:"Disable the query server"`
}

// cleanAndExpandPath expands environment variables and leading ~ in the
// passed path, cleans the result, and returns it.
func cleanAndExpandPath(path string) string {
	if path == "" {
		return ""
	}

	// Expand initial ~ to OS specific home directory.
	if strings.HasPrefix(path, "~") {
		var homeDir string
		u, err := user.Current()
		if err == nil {
			homeDir = u.HomeDir
		} else {
			homeDir = os.Getenv("HOME")
		}

		path = strings.Replace(path, "~", homeDir, 1)
	}

	// NOTE: The os.ExpandEnv doesn't work with Windows-style %VARIABLE%,
	// but the variables can still be expanded via POSIX-style $VARIABLE.
	return filepath.Clean(os.ExpandEnv(path))
}

// validLogLevel returns whether or not logLevel is a valid debug log level.
func validLogLevel(logLevel string) bool {
	switch logLevel {
	case "trace", "debug", "info", "warn", "warning", "error", "fatal", "panic":
		return true
	}
	return false
}

// parseAndSetDebugLevels attempts to parse the specified debug level and set
// the levels accordingly.  An appropriate error is returned if anything is
// invalid.
func parseAndSetDebugLevels(debugLevel string) error {
	// When the specified string doesn't have any delimters, treat it as
	// the log level for all subsystems.
	if !strings.Contains(debugLevel, ",") && !strings.Contains(debugLevel, "=") {
		// Validate debug log level.
		if !validLogLevel(debugLevel) {
			str := "the specified debug level [%v] is invalid"
			return fmt.Errorf(str, debugLevel)
		}

		// Change the logging level for all subsystems.
		setLogLevels(debugLevel)

		return nil
	}

	// Split the specified string into subsystem/level pairs while detecting
	// issues and update the log levels accordingly.
	for _, logLevelPair := range strings.Split(debugLevel, ",") {
		if !strings.Contains(logLevelPair, "=") {
			str := "the specified debug level contains an invalid " +
				"subsystem/level pair [%v]"
			return fmt.Errorf(str, logLevelPair)
		}

		// Extract the specified subsystem and log level.
		fields := strings.Split(logLevelPair, "=")
		subsysID, logLevel := fields[0], fields[1]

		// Validate subsystem.
		if _, exists := subsystemLoggers[subsysID]; !exists {
			str := "the specified subsystem [%v] is invalid -- " +
				"supported subsytems %v"
			return fmt.Errorf(str, subsysID, supportedSubsystems())
		}

		// Validate log level.
		if !validLogLevel(logLevel) {
			str := "the specified debug level [%v] is invalid"
			return fmt.Errorf(str, logLevel)
		}

		setLogLevel(subsysID, logLevel)
	}

	return nil
}

// loadConfig initializes and parses the config using a config file and command
// line options.
//
// The configuration proceeds as follows:
//  1. Start with a default config with sane settings
//  2. Pre-parse the command line to check for an alternative config file
//  3. Load configuration file overwriting defaults with any specified options
//  4. Parse CLI options and overwrite/add any specified options
func loadConfig() (*config, []string, error) {
	// Default config.
	cfg := config{
		ConfigFile:    defaultConfigFile,
		DebugLevel:    defaultLogLevel,
		DataDir:       defaultDataDir,
		LogDir:        defaultLogDir,
		Chain:         common.ChainMainnet,
		FlushInterval: defaultFlushInterval,
		KeepHistory:   database.DefaultKeepHistory,
		EntityDB:      "badger",
		SeriesDB:      "leveldb",
		CohortDB:      "bolt",
		BitcoindHost:  defaultBitcoindHost,
		RPCListen:     defaultRPCListen,
	}

	// Pre-parse the command line options to see if an alternative config
	// file or the version flag was specified.
	preCfg := cfg
	preParser := flags.NewParser(&preCfg, flags.HelpFlag)
	_, err := preParser.Parse()
	if err != nil {
		if e, ok := err.(*flags.Error); ok && e.Type == flags.ErrHelp {
			fmt.Fprintln(os.Stdout, err)
			os.Exit(0)
		}
		return nil, nil, err
	}

	// Show the version and exit if the version flag was specified.
	appName := filepath.Base(os.Args[0])
	appName = strings.TrimSuffix(appName, filepath.Ext(appName))
	usageMessage := fmt.Sprintf("Use %s -h to show usage", appName)
	if preCfg.ShowVersion {
		fmt.Println(appName, "version", common.COHORTD_VERSION)
		os.Exit(0)
	}

	// Load additional config from file.
	var configFileError error
	parser := flags.NewParser(&cfg, flags.Default)
	err = flags.NewIniParser(parser).ParseFile(cleanAndExpandPath(preCfg.ConfigFile))
	if err != nil {
		if _, ok := err.(*os.PathError); !ok {
			fmt.Fprintf(os.Stderr, "Error parsing config file: %v\n", err)
			fmt.Fprintln(os.Stderr, usageMessage)
			return nil, nil, err
		}
		configFileError = err
	}

	// Parse command line options again to ensure they take precedence.
	remainingArgs, err := parser.Parse()
	if err != nil {
		if e, ok := err.(*flags.Error); !ok || e.Type != flags.ErrHelp {
			fmt.Fprintln(os.Stderr, usageMessage)
		}
		return nil, nil, err
	}

	cfg.DataDir = cleanAndExpandPath(cfg.DataDir)
	cfg.LogDir = cleanAndExpandPath(cfg.LogDir)
	cfg.RPCLogDir = cleanAndExpandPath(cfg.RPCLogDir)
	cfg.PriceFile = cleanAndExpandPath(cfg.PriceFile)
	cfg.RPCProxy = strings.TrimSuffix(cfg.RPCProxy, "/")

	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	if _, err := common.ChainParams(cfg.Chain); err != nil {
		fmt.Fprintln(os.Stderr, usageMessage)
		return nil, nil, err
	}

	if cfg.FlushInterval <= 0 {
		err := fmt.Errorf("flushinterval must be positive, got %d", cfg.FlushInterval)
		fmt.Fprintln(os.Stderr, usageMessage)
		return nil, nil, err
	}
	if cfg.KeepHistory < 1 {
		err := fmt.Errorf("keephistory must be at least 1, got %d", cfg.KeepHistory)
		fmt.Fprintln(os.Stderr, usageMessage)
		return nil, nil, err
	}

	// Initialize log rotation.  After log rotation has been initialized, the
	// logger variables may be used.
	if err := initLogRotator(filepath.Join(cfg.LogDir, defaultLogFilename)); err != nil {
		return nil, nil, err
	}

	// Special show command to list supported subsystems and exit.
	if cfg.DebugLevel == "show" {
		fmt.Println("Supported subsystems", supportedSubsystems())
		os.Exit(0)
	}

	// Parse, validate, and set debug log level(s).
	if err := parseAndSetDebugLevels(cfg.DebugLevel); err != nil {
		err := fmt.Errorf("%s: %v", "loadConfig", err.Error())
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, usageMessage)
		return nil, nil, err
	}

	// Warn about missing config file only after all other configuration is
	// done.  This prevents the warning on help messages and invalid
	// options.  Note this should go directly before the return.
	if configFileError != nil {
		cohdLog.Warnf("%v", configFileError)
	}

	return &cfg, remainingArgs, nil
}
