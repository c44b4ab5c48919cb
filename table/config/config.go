package config

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ghodss/yaml"
	"github.com/google/uuid"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Write concurrency modes.
const (
	SingleWriter                 = "single_writer"
	OptimisticConcurrencyControl = "optimistic_concurrency_control"
)

// Conflict resolution strategy names.
const (
	SimpleStrategy          = "simple"
	StateTransitionStrategy = "state-transition"
)

// Lock provider names.
const (
	LocalLockProvider     = "local"
	EtcdLockProvider      = "etcd"
	ZooKeeperLockProvider = "zookeeper"
)

// Storage types.
const (
	MemoryStorage  = "memory"
	BadgerStorage  = "badger"
	LevelDBStorage = "leveldb"
	EtcdStorage    = "etcd"
)

const (
	defaultTableName      = "default"
	defaultWaitTimeout    = 60 * time.Second
	defaultRetryInterval  = time.Second
	defaultLeaseTTL       = 60
	defaultSessionTimeout = 10 * time.Second
	defaultRequestTimeout = 10 * time.Second
	defaultLockKeyPrefix  = "/tinytable/locks"
	defaultTimelineRoot   = "/tinytable/timeline"
	defaultStoragePath    = "/tmp/tinytable"
	defaultEtcdEndpoint   = "127.0.0.1:2379"
)

// Config is the writer-side configuration of one table.
type Config struct {
	// TableName identifies the table; it scopes lock keys and timeline paths.
	TableName string `toml:"table-name" json:"table-name"`
	// ClientID identifies this writer to the lock backend. Defaults to a random UUID.
	ClientID string `toml:"client-id" json:"client-id"`

	Log log.Config `toml:"log" json:"log"`

	Concurrency ConcurrencyConfig `toml:"write-concurrency" json:"write-concurrency"`
	Lock        LockConfig        `toml:"lock" json:"lock"`
	Storage     StorageConfig     `toml:"storage" json:"storage"`

	// For all warnings during parsing.
	WarningMsgs []string `toml:"-" json:"-"`

	logger   *zap.Logger
	logProps *log.ZapProperties
}

// ConcurrencyConfig selects how concurrent writers are coordinated.
type ConcurrencyConfig struct {
	Mode string `toml:"mode" json:"mode"`
	// ConflictResolutionStrategy is either "simple" (window bounded by creation time) or "state-transition" (window
	// bounded by completion time).
	ConflictResolutionStrategy string `toml:"conflict-resolution-strategy" json:"conflict-resolution-strategy"`
}

// LockConfig configures the external lock a transaction is serialized by.
type LockConfig struct {
	Provider string `toml:"provider" json:"provider"`
	// WaitTimeout bounds how long BeginTransaction blocks waiting for the lock.
	WaitTimeout Duration `toml:"wait-timeout" json:"wait-timeout"`
	// RetryInterval is the pause between attempts after a transient provider error.
	RetryInterval Duration `toml:"retry-interval" json:"retry-interval"`
	Endpoints     []string `toml:"endpoints" json:"endpoints"`
	KeyPrefix     string   `toml:"key-prefix" json:"key-prefix"`
	// LeaseTTL is the etcd session TTL in seconds. A crashed holder's lock is reclaimed after it expires.
	LeaseTTL       int      `toml:"lease-ttl" json:"lease-ttl"`
	SessionTimeout Duration `toml:"session-timeout" json:"session-timeout"`
}

// StorageConfig configures where the timeline is persisted.
type StorageConfig struct {
	Type           string   `toml:"type" json:"type"`
	Path           string   `toml:"path" json:"path"`
	Endpoints      []string `toml:"endpoints" json:"endpoints"`
	RootPath       string   `toml:"root-path" json:"root-path"`
	RequestTimeout Duration `toml:"request-timeout" json:"request-timeout"`
}

// NewDefaultConfig returns a configuration for a single writer backed by badger.
func NewDefaultConfig() *Config {
	cfg := &Config{
		TableName: defaultTableName,
		Concurrency: ConcurrencyConfig{
			Mode:                       SingleWriter,
			ConflictResolutionStrategy: SimpleStrategy,
		},
		Lock: LockConfig{
			Provider: LocalLockProvider,
		},
		Storage: StorageConfig{
			Type: BadgerStorage,
			Path: defaultStoragePath,
		},
	}
	cfg.Log.Level = getLogLevel()
	return cfg
}

// NewTestConfig returns an optimistic configuration with in-memory storage and in-process locking.
func NewTestConfig() *Config {
	cfg := &Config{
		TableName: "test",
		Concurrency: ConcurrencyConfig{
			Mode:                       OptimisticConcurrencyControl,
			ConflictResolutionStrategy: SimpleStrategy,
		},
		Lock: LockConfig{
			Provider:      LocalLockProvider,
			WaitTimeout:   NewDuration(time.Second),
			RetryInterval: NewDuration(50 * time.Millisecond),
		},
		Storage: StorageConfig{
			Type: MemoryStorage,
		},
	}
	cfg.Log.Level = getLogLevel()
	return cfg
}

func getLogLevel() (logLevel string) {
	logLevel = "info"
	if l := os.Getenv("LOG_LEVEL"); len(l) != 0 {
		logLevel = l
	}
	return
}

// LoadFile reads a TOML or YAML file, chosen by extension, on top of the default configuration, then adjusts and
// validates the result.
func LoadFile(path string) (*Config, error) {
	cfg := NewDefaultConfig()
	var meta *toml.MetaData
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err := ioutil.ReadFile(path)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Annotatef(err, "parse %s", path)
		}
	default:
		md, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, errors.Annotatef(err, "parse %s", path)
		}
		meta = &md
	}
	if err := cfg.Adjust(meta); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Adjust fills unset fields with defaults and validates the configuration. meta is nil when the configuration did not
// come from a TOML file.
func (c *Config) Adjust(meta *toml.MetaData) error {
	if meta != nil {
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, 0, len(undecoded))
			for _, k := range undecoded {
				keys = append(keys, k.String())
			}
			c.WarningMsgs = append(c.WarningMsgs, fmt.Sprintf("config contains undefined item: %s", strings.Join(keys, ", ")))
		}
	}

	adjustString(&c.TableName, defaultTableName)
	adjustString(&c.ClientID, uuid.New().String())
	adjustString(&c.Concurrency.Mode, SingleWriter)
	adjustString(&c.Concurrency.ConflictResolutionStrategy, SimpleStrategy)

	adjustString(&c.Lock.Provider, LocalLockProvider)
	adjustDuration(&c.Lock.WaitTimeout, defaultWaitTimeout)
	adjustDuration(&c.Lock.RetryInterval, defaultRetryInterval)
	adjustDuration(&c.Lock.SessionTimeout, defaultSessionTimeout)
	adjustString(&c.Lock.KeyPrefix, defaultLockKeyPrefix)
	adjustInt(&c.Lock.LeaseTTL, defaultLeaseTTL)
	if len(c.Lock.Endpoints) == 0 && c.Lock.Provider == EtcdLockProvider {
		c.Lock.Endpoints = []string{defaultEtcdEndpoint}
	}

	adjustString(&c.Storage.Type, BadgerStorage)
	adjustString(&c.Storage.RootPath, defaultTimelineRoot)
	adjustDuration(&c.Storage.RequestTimeout, defaultRequestTimeout)
	if len(c.Storage.Endpoints) == 0 && c.Storage.Type == EtcdStorage {
		c.Storage.Endpoints = []string{defaultEtcdEndpoint}
	}

	return c.Validate()
}

// Validate checks that the configuration is consistent.
func (c *Config) Validate() error {
	switch c.Concurrency.Mode {
	case SingleWriter, OptimisticConcurrencyControl:
	default:
		return errors.Errorf("unknown write concurrency mode %q", c.Concurrency.Mode)
	}
	switch c.Concurrency.ConflictResolutionStrategy {
	case SimpleStrategy, StateTransitionStrategy:
	default:
		return errors.Errorf("unknown conflict resolution strategy %q", c.Concurrency.ConflictResolutionStrategy)
	}
	switch c.Lock.Provider {
	case LocalLockProvider:
	case EtcdLockProvider, ZooKeeperLockProvider:
		if len(c.Lock.Endpoints) == 0 {
			return errors.Errorf("lock provider %s needs at least one endpoint", c.Lock.Provider)
		}
	default:
		return errors.Errorf("unknown lock provider %q", c.Lock.Provider)
	}
	if c.Lock.WaitTimeout.Duration <= 0 {
		return errors.New("lock wait-timeout must be positive")
	}
	switch c.Storage.Type {
	case MemoryStorage:
	case BadgerStorage, LevelDBStorage:
		if len(c.Storage.Path) == 0 {
			return errors.Errorf("storage %s needs a path", c.Storage.Type)
		}
	case EtcdStorage:
		if len(c.Storage.Endpoints) == 0 {
			return errors.New("etcd storage needs at least one endpoint")
		}
	default:
		return errors.Errorf("unknown storage type %q", c.Storage.Type)
	}
	return nil
}

// IsLockRequired reports whether transactions must hold the external lock. That is the case exactly when more than
// one writer may be active.
func (c *Config) IsLockRequired() bool {
	return c.Concurrency.Mode == OptimisticConcurrencyControl
}

// SetupLogger setup the logger.
func (c *Config) SetupLogger() error {
	lg, p, err := log.InitLogger(&c.Log, zap.AddStacktrace(zapcore.FatalLevel))
	if err != nil {
		return err
	}
	c.logger = lg
	c.logProps = p
	return nil
}

// GetZapLogger gets the created zap logger.
func (c *Config) GetZapLogger() *zap.Logger {
	return c.logger
}

// GetZapLogProperties gets properties of the zap logger.
func (c *Config) GetZapLogProperties() *log.ZapProperties {
	return c.logProps
}

func adjustString(v *string, defValue string) {
	if len(*v) == 0 {
		*v = defValue
	}
}

func adjustInt(v *int, defValue int) {
	if *v == 0 {
		*v = defValue
	}
}

func adjustDuration(v *Duration, defValue time.Duration) {
	if v.Duration == 0 {
		v.Duration = defValue
	}
}
