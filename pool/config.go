package pool

import (
	"errors"
	"fmt"
	"time"

	"dario.cat/mergo"
)

// DefaultDeadServerRetryInterval is used when Config.DeadServerRetryInterval
// is not set.
const DefaultDeadServerRetryInterval = 60 * time.Second

var ErrNoMasters = errors.New("pool: at least one master endpoint is required")

// Endpoint describes how to reach a single instance.
type Endpoint struct {
	Address  string `yaml:"address"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	// Timeout for a single request on the opened connection.
	Timeout time.Duration `yaml:"timeout"`
	// Reconnect and MaxReconnects are passed to the connector.
	Reconnect     time.Duration `yaml:"reconnect"`
	MaxReconnects uint          `yaml:"max_reconnects"`
	// ConnectRetries is the number of extra connect attempts before the
	// endpoint is marked dead.
	ConnectRetries    uint64        `yaml:"connect_retries"`
	ConnectRetryDelay time.Duration `yaml:"connect_retry_delay"`
}

func (e Endpoint) String() string {
	return e.Address
}

// Config describes a master/replica set.
type Config struct {
	Masters  []Endpoint `yaml:"masters"`
	Replicas []Endpoint `yaml:"replicas"`
	// MasterConfig and ReplicaConfig are defaults for every entry of the
	// corresponding list. Values set on an entry win.
	MasterConfig  Endpoint `yaml:"master_config"`
	ReplicaConfig Endpoint `yaml:"replica_config"`
	// ShuffleMasters randomizes the master order on every resolution.
	ShuffleMasters bool `yaml:"shuffle_masters"`
	// EnableReplicas routes read-only requests to replicas.
	EnableReplicas bool `yaml:"enable_replicas"`
	// DeadServerRetryInterval is how long a failed endpoint is skipped.
	DeadServerRetryInterval time.Duration `yaml:"dead_server_retry_interval"`
	// VerifyRole checks box.info after opening an endpoint: the instance
	// must be running, and a master must not be read-only.
	VerifyRole bool `yaml:"verify_role"`
}

// Validate checks the config can be used to build a pool.
func (cfg Config) Validate() error {
	if len(cfg.Masters) == 0 {
		return ErrNoMasters
	}
	for i, e := range cfg.Masters {
		if e.Address == "" {
			return fmt.Errorf("pool: masters[%d]: empty address", i)
		}
	}
	for i, e := range cfg.Replicas {
		if e.Address == "" {
			return fmt.Errorf("pool: replicas[%d]: empty address", i)
		}
	}
	if cfg.DeadServerRetryInterval < 0 {
		return fmt.Errorf("pool: negative dead server retry interval %s", cfg.DeadServerRetryInterval)
	}
	return nil
}

func (cfg Config) retryInterval() time.Duration {
	if cfg.DeadServerRetryInterval == 0 {
		return DefaultDeadServerRetryInterval
	}
	return cfg.DeadServerRetryInterval
}

// Endpoints returns the endpoints of role with the shared defaults merged in.
func (cfg Config) Endpoints(role Role) ([]Endpoint, error) {
	list, defaults := cfg.Masters, cfg.MasterConfig
	if role == ReplicaRole {
		list, defaults = cfg.Replicas, cfg.ReplicaConfig
	}
	merged := make([]Endpoint, 0, len(list))
	for _, e := range list {
		if err := mergo.Merge(&e, defaults); err != nil {
			return nil, fmt.Errorf("pool: failed to apply %s defaults to %s: %w", role, e.Address, err)
		}
		merged = append(merged, e)
	}
	return merged, nil
}
