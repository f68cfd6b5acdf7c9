package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	query "github.com/ice-blockchain/go-tarantool-query"
	"github.com/ice-blockchain/go-tarantool-query/pool"
)

// config is the file passed with --config.
type config struct {
	Pool  pool.Config `yaml:"pool"`
	Query query.Opts  `yaml:"query"`
	// Redis shares dead-server marks between processes when Addrs is set.
	Redis redisConfig `yaml:"redis"`
}

type redisConfig struct {
	Addrs    []string `yaml:"addrs"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	DB       int      `yaml:"db"`
	Prefix   string   `yaml:"prefix"`
}

func loadConfig(path string) (config, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return config{}, fmt.Errorf("failed to read config: %w", err)
	}
	return parseConfig(body)
}

func parseConfig(body []byte) (config, error) {
	var cfg config
	if err := yaml.Unmarshal(body, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Pool.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// parseArg decodes a command line argument as a YAML scalar or flow
// collection, so 42, true, 1.5, '[1, "a"]' and '{id: 1}' keep their types.
// Anything that is not valid YAML is passed as a string.
func parseArg(arg string) interface{} {
	var v interface{}
	if err := yaml.Unmarshal([]byte(arg), &v); err != nil || v == nil {
		return arg
	}
	return v
}

func parseArgs(args []string) []interface{} {
	values := make([]interface{}, 0, len(args))
	for _, arg := range args {
		values = append(values, parseArg(arg))
	}
	return values
}
