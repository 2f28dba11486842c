package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/decred/dcrd/dcrutil/v4"
	flags "github.com/jessevdk/go-flags"
	"github.com/mahdiidarabi/keyladder/internal/affine"
	"github.com/mahdiidarabi/keyladder/internal/checkpoint"
	"github.com/mahdiidarabi/keyladder/internal/keystore"
	"github.com/mahdiidarabi/keyladder/internal/lane"
	"github.com/mahdiidarabi/keyladder/internal/verifier"
	"github.com/mahdiidarabi/keyladder/pkg/keyladder"
)

const (
	defaultConfigFilename = "keyladder.conf"
	defaultDataDirname    = "data"
	defaultLogDirname     = "logs"
	defaultLogFilename    = "keyladder.log"
	defaultLogLevel       = "info"
	defaultBackend        = "secp256k1"
	keyStoreDirname       = "keys"
	checkpointDirname     = "checkpoints"
)

var (
	defaultHomeDir    = dcrutil.AppDataDir("keyladder", false)
	defaultConfigFile = filepath.Join(defaultHomeDir, defaultConfigFilename)
	defaultDataDir    = filepath.Join(defaultHomeDir, defaultDataDirname)
	defaultLogDir     = filepath.Join(defaultHomeDir, defaultLogDirname)
)

// config defines the global configuration options.  Subcommands carry their
// own options.
type config struct {
	ConfigFile   string `short:"C" long:"configfile" description:"Path to configuration file"`
	DataDir      string `short:"b" long:"datadir" description:"Directory to store the key store and checkpoints"`
	LogDir       string `long:"logdir" description:"Directory to log output"`
	NoFileLog    bool   `long:"nofilelogging" description:"Disable file logging"`
	DebugLevel   string `short:"d" long:"debuglevel" description:"Logging level {trace, debug, info, warn, error, critical, off} -- Use show to list available subsystems"`
	KeyFile      string `short:"k" long:"keys" description:"Key datastore: a CSV or JSON file (defaults to the imported key store in the data directory)"`
	Lanes        int    `long:"lanes" description:"Number of low-order key bytes modelled"`
	Multipliers  string `long:"multipliers" description:"Comma separated per-lane multipliers (defaults to the built-in model when lanes is 16)"`
	ScheduleBase uint   `long:"schedulebase" description:"Sequence index of the first drift block"`
	BlockSize    uint   `long:"blocksize" description:"Sequence indices per drift block"`
	Backend      string `long:"backend" description:"Point multiplication backend {secp256k1, affine}"`
}

// defaultConfig returns the configuration with every default applied.
func defaultConfig() config {
	return config{
		ConfigFile:   defaultConfigFile,
		DataDir:      defaultDataDir,
		LogDir:       defaultLogDir,
		DebugLevel:   defaultLogLevel,
		Lanes:        lane.DefaultLanes,
		ScheduleBase: keyladder.DefaultScheduleBase,
		BlockSize:    affine.DefaultBlockSize,
		Backend:      defaultBackend,
	}
}

// command is a subcommand registered with the parser.
type command struct {
	name  string
	short string
	long  string
	data  flags.Commander
}

// commands returns the subcommands bound to cfg.
func commands(cfg *config) []command {
	return []command{
		{"calibrate", "Calibrate the drift between two known keys",
			"Solve the per-lane drift carrying one known key to another. " +
				"With --from/--to the keys are read from the datastore and " +
				"a unique drift is written to the calibration artifact.",
			&calibrateCmd{cfg: cfg}},
		{"verify", "Verify a calibration against the known keys",
			"Predict each known key from its neighbour and report the " +
				"lanes that do not match.",
			&verifyCmd{cfg: cfg}},
		{"search", "Search a key range for an address",
			"Scan a range with concurrent workers, checkpointing progress " +
				"so an interrupted search resumes where it stopped.",
			newSearchCmd(cfg)},
		{"derive", "Derive the address of a key",
			"Print the address, and optionally the WIF, of a hex key.",
			&deriveCmd{cfg: cfg}},
		{"status", "Show the checkpointed state of a search",
			"Print the puzzle status and every task's progress.",
			&statusCmd{cfg: cfg}},
		{"import", "Import a CSV or JSON datastore into the key store",
			"Validate every row of the file and write them to the leveldb " +
				"key store in the data directory.",
			&importCmd{cfg: cfg}},
	}
}

// newConfigParser returns a new command line parser for cfg with every
// subcommand registered.
func newConfigParser(cfg *config, options flags.Options) (*flags.Parser, error) {
	parser := flags.NewParser(cfg, options)
	for _, c := range commands(cfg) {
		if _, err := parser.AddCommand(c.name, c.short, c.long, c.data); err != nil {
			return nil, err
		}
	}
	return parser, nil
}

// cleanAndExpandPath expands environment variables and leading ~ in the
// passed path, cleans the result, and returns it.
func cleanAndExpandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		homeDir := filepath.Dir(defaultHomeDir)
		path = strings.Replace(path, "~", homeDir, 1)
	}
	return filepath.Clean(os.ExpandEnv(path))
}

// loadConfig initializes and parses the config using a config file and
// command line options.
//
// The configuration proceeds as follows:
//  1. Start with a default config with sane settings
//  2. Pre-parse the command line to check for an alternative config file
//  3. Load configuration file overwriting defaults with any specified options
//  4. Parse CLI options and overwrite/add any specified options
//
// The returned parser runs the selected subcommand when its Parse method is
// called with the same arguments.
func loadConfig(args []string) (*config, *flags.Parser, error) {
	// Pre-parse the command line options to see if an alternative config
	// file was specified.  Subcommands are not run by the pre-parser.
	preCfg := defaultConfig()
	preParser, err := newConfigParser(&preCfg, flags.HelpFlag|flags.PassDoubleDash)
	if err != nil {
		return nil, nil, err
	}
	preParser.CommandHandler = func(flags.Commander, []string) error {
		return nil
	}
	if _, err := preParser.ParseArgs(args); err != nil {
		var e *flags.Error
		if errors.As(err, &e) && e.Type == flags.ErrHelp {
			fmt.Fprintln(os.Stdout, err)
			os.Exit(0)
		}
		return nil, nil, err
	}

	cfg := defaultConfig()
	parser, err := newConfigParser(&cfg, flags.HelpFlag|flags.PassDoubleDash)
	if err != nil {
		return nil, nil, err
	}

	// Load additional config from file.  A missing default config file is
	// not an error.
	configFile := cleanAndExpandPath(preCfg.ConfigFile)
	err = flags.NewIniParser(parser).ParseFile(configFile)
	if err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) || preCfg.ConfigFile != defaultConfigFile {
			return nil, nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}
	cfg.ConfigFile = configFile

	return &cfg, parser, nil
}

// validate checks the parsed options and expands paths.
func (cfg *config) validate() error {
	cfg.DataDir = cleanAndExpandPath(cfg.DataDir)
	cfg.LogDir = cleanAndExpandPath(cfg.LogDir)
	if cfg.KeyFile != "" {
		cfg.KeyFile = cleanAndExpandPath(cfg.KeyFile)
	}
	switch cfg.Backend {
	case "secp256k1", "affine":
	default:
		return fmt.Errorf("unknown backend %q", cfg.Backend)
	}
	_, err := cfg.modelConfig()
	return err
}

// parseMultipliers parses a comma separated list of byte values.
func parseMultipliers(s string) ([]byte, error) {
	fields := strings.Split(s, ",")
	out := make([]byte, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseUint(strings.TrimSpace(f), 10, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid multiplier %q: %w", f, err)
		}
		out = append(out, byte(v))
	}
	return out, nil
}

// modelConfig builds the affine model configuration from the options.
func (cfg *config) modelConfig() (keyladder.ModelConfig, error) {
	model := keyladder.DefaultModelConfig()
	model.Lanes = cfg.Lanes
	model.Schedule = affine.Schedule{Base: cfg.ScheduleBase, BlockSize: cfg.BlockSize}

	if cfg.Multipliers != "" {
		a, err := parseMultipliers(cfg.Multipliers)
		if err != nil {
			return model, err
		}
		model.Multipliers = a
	} else if cfg.Lanes != lane.DefaultLanes {
		return model, fmt.Errorf("--multipliers is required with %d lanes",
			cfg.Lanes)
	}
	if len(model.Multipliers) != model.Lanes {
		return model, fmt.Errorf("%d multipliers given for %d lanes",
			len(model.Multipliers), model.Lanes)
	}
	if cfg.BlockSize < affine.Occurrences {
		return model, fmt.Errorf("block size %d is less than %d",
			cfg.BlockSize, affine.Occurrences)
	}
	return model, nil
}

// backend returns the configured point multiplication backend.
func (cfg *config) backend() verifier.Backend {
	if cfg.Backend == "affine" {
		return verifier.AffineBackend{}
	}
	return verifier.Secp256k1Backend{}
}

// newClient returns a client configured from the options.
func (cfg *config) newClient() (*keyladder.Client, error) {
	model, err := cfg.modelConfig()
	if err != nil {
		return nil, err
	}
	return keyladder.NewClient().
		WithModelConfig(model).
		WithBackend(cfg.backend()), nil
}

// openKeySource opens the key datastore: the configured CSV or JSON file, or
// the leveldb key store in the data directory.  The returned function
// releases it.
func (cfg *config) openKeySource() (keystore.Source, func(), error) {
	switch strings.ToLower(filepath.Ext(cfg.KeyFile)) {
	case ".csv", ".json":
		mem, err := keystore.LoadMemory(cfg.KeyFile)
		if err != nil {
			return nil, nil, err
		}
		return mem, func() {}, nil
	}

	path := cfg.KeyFile
	if path == "" {
		path = filepath.Join(cfg.DataDir, keyStoreDirname)
	}
	db, err := keystore.OpenLevelDB(path, 0)
	if err != nil {
		return nil, nil, err
	}
	return db, func() {
		if err := db.Close(); err != nil {
			kldrLog.Errorf("Unable to close key store: %v", err)
		}
	}, nil
}

// openCheckpoints opens the checkpoint store in the data directory.
func (cfg *config) openCheckpoints() (*checkpoint.LevelDB, error) {
	return checkpoint.OpenLevelDB(filepath.Join(cfg.DataDir, checkpointDirname))
}
