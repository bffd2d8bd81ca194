package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// Default names of the external binaries driven by the orchestrator. They are
// all treated as opaque processes.
const (
	DefaultConsensusBinary          = "consensus-service"
	DefaultLedgerDistributionBinary = "ledger-distribution"
	DefaultAdminGatewayBinary       = "mc-admin-http-gateway"
	DefaultMintClientBinary         = "mc-consensus-mint-client"
	DefaultSeededKeygenBinary       = "mc-util-seeded-ed25519-key-gen"
)

// Default configuration values.
const (
	DefaultLogLevel                 = "debug"
	DefaultBaseClientPort           = 3200
	DefaultBasePeerPort             = 3300
	DefaultBaseAdminPort            = 3400
	DefaultBaseAdminHTTPGatewayPort = 3500
	DefaultControlPort              = 31337
	DefaultBlockVersion             = 2
	DefaultMinimumFee               = 400_000_000
	DefaultPollInterval             = 1 * time.Second
	DefaultStartupTimeout           = 120 * time.Second
)

// Default log filters exported to the spawned binaries.
const (
	DefaultMCLogFilter = "debug,rustls=warn,hyper=warn,tokio_reactor=warn,mio=warn,want=warn,rusoto_core=error,h2=error,reqwest=error,rocket=error,<unknown>=error"
	DefaultFSLogFilter = "info"
)

// DefaultIASAPIKey and DefaultIASSPID are dummy attestation parameters; the
// local network runs engine binaries in insecure mode, so zeroes are accepted.
var (
	DefaultIASAPIKey = fmt.Sprintf("%064d", 0)
	DefaultIASSPID   = fmt.Sprintf("%032d", 0)
)

const logFile = "mcnet.log"

// Config contains all the configuration properties of a local network run. It
// is built once, before the network is constructed, and never mutated
// afterwards.
type Config struct {
	// WorkDir is the directory holding all per-run state: keys, per-node
	// configs, ledgers and logs. It is wiped and recreated when a network is
	// constructed.
	WorkDir string `mapstructure:"workdir"`

	// BinDir is the directory containing the external binaries.
	BinDir string `mapstructure:"bindir"`

	// LedgerBase is the path of the origin block passed to every engine
	// process.
	LedgerBase string `mapstructure:"ledger-base"`

	// LogLevel determines the chattiness of the log output.
	LogLevel string `mapstructure:"log"`

	// ConsensusBinary is the name of the consensus engine binary.
	ConsensusBinary string `mapstructure:"consensus-binary"`

	// LedgerDistributionBinary is the name of the ledger distribution sidecar.
	LedgerDistributionBinary string `mapstructure:"ledger-distribution-binary"`

	// AdminGatewayBinary is the name of the admin HTTP gateway sidecar.
	AdminGatewayBinary string `mapstructure:"admin-gateway-binary"`

	// MintClientBinary is the name of the tool that countersigns governor
	// sets in a tokens file.
	MintClientBinary string `mapstructure:"mint-client-binary"`

	// SeededKeygenBinary is the name of the deterministic Ed25519 keygen
	// tool used for the minting trust root.
	SeededKeygenBinary string `mapstructure:"seeded-keygen-binary"`

	// Base ports. A node with index i listens on base+i for each channel.
	BaseClientPort           int `mapstructure:"base-client-port"`
	BasePeerPort             int `mapstructure:"base-peer-port"`
	BaseAdminPort            int `mapstructure:"base-admin-port"`
	BaseAdminHTTPGatewayPort int `mapstructure:"base-admin-http-gateway-port"`

	// ControlPort is the TCP port of the network control server.
	ControlPort int `mapstructure:"control-port"`

	// IASAPIKey and IASSPID are forwarded verbatim to the engine.
	IASAPIKey string `mapstructure:"ias-api-key"`
	IASSPID   string `mapstructure:"ias-spid"`

	// BlockVersion is the block version shared by all nodes.
	BlockVersion int `mapstructure:"block-version"`

	// MinimumFee is the minimum fee of the default token.
	MinimumFee uint64 `mapstructure:"minimum-fee"`

	// MCLogFilter and FSLogFilter are exported to every spawned process as
	// the MC_LOG and FS_LOG environment variables. A value already present
	// in the orchestrator's own environment wins.
	MCLogFilter string `mapstructure:"mc-log"`
	FSLogFilter string `mapstructure:"fs-log"`

	// PollInterval is the cadence of readiness and liveness polling.
	PollInterval time.Duration `mapstructure:"poll-interval"`

	// StartupTimeout bounds the wait for a node's ledger database to appear
	// after the engine is spawned. Zero means wait forever.
	StartupTimeout time.Duration `mapstructure:"startup-timeout"`

	logger *logrus.Logger
}

// NewDefaultConfig returns the default configuration.
func NewDefaultConfig() *Config {
	return &Config{
		WorkDir:                  filepath.Join("target", "release", "mc-local-network"),
		BinDir:                   filepath.Join("target", "release"),
		LedgerBase:               filepath.Join("target", "sample_data", "ledger"),
		LogLevel:                 DefaultLogLevel,
		ConsensusBinary:          DefaultConsensusBinary,
		LedgerDistributionBinary: DefaultLedgerDistributionBinary,
		AdminGatewayBinary:       DefaultAdminGatewayBinary,
		MintClientBinary:         DefaultMintClientBinary,
		SeededKeygenBinary:       DefaultSeededKeygenBinary,
		BaseClientPort:           DefaultBaseClientPort,
		BasePeerPort:             DefaultBasePeerPort,
		BaseAdminPort:            DefaultBaseAdminPort,
		BaseAdminHTTPGatewayPort: DefaultBaseAdminHTTPGatewayPort,
		ControlPort:              DefaultControlPort,
		IASAPIKey:                DefaultIASAPIKey,
		IASSPID:                  DefaultIASSPID,
		BlockVersion:             DefaultBlockVersion,
		MinimumFee:               DefaultMinimumFee,
		MCLogFilter:              DefaultMCLogFilter,
		FSLogFilter:              DefaultFSLogFilter,
		PollInterval:             DefaultPollInterval,
		StartupTimeout:           DefaultStartupTimeout,
	}
}

// BinPath returns the full path of an external binary.
func (c *Config) BinPath(name string) string {
	return filepath.Join(c.BinDir, name)
}

// ChildEnv returns the environment for spawned processes: the current
// environment with MC_LOG and FS_LOG defaulted when not already set.
func (c *Config) ChildEnv() []string {
	env := os.Environ()
	if _, ok := os.LookupEnv("MC_LOG"); !ok {
		env = append(env, "MC_LOG="+c.MCLogFilter)
	}
	if _, ok := os.LookupEnv("FS_LOG"); !ok {
		env = append(env, "FS_LOG="+c.FSLogFilter)
	}
	return env
}

// MintingKeysDir returns the directory containing the governor keys and the
// minting trust root.
func (c *Config) MintingKeysDir() string {
	return filepath.Join(c.WorkDir, "minting-keys")
}

// Logger returns a formatted logrus Entry, with prefix set to "mcnet". Log
// output is mirrored into a file inside the working directory once it exists.
func (c *Config) Logger() *logrus.Entry {
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.Level = LogLevel(c.LogLevel)
		c.logger.Formatter = new(prefixed.TextFormatter)

		if _, err := os.Stat(c.WorkDir); err == nil {
			pathMap := lfshook.PathMap{
				logrus.InfoLevel:  filepath.Join(c.WorkDir, logFile),
				logrus.ErrorLevel: filepath.Join(c.WorkDir, logFile),
			}
			c.logger.Hooks.Add(lfshook.NewHook(
				pathMap,
				&logrus.TextFormatter{},
			))
		}
	}
	return c.logger.WithField("prefix", "mcnet")
}

// LogLevel parses a string into a Logrus log level.
func LogLevel(l string) logrus.Level {
	switch l {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.DebugLevel
	}
}
