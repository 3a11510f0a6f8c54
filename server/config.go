package server

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/dekarrin/tunatalk/internal/machine"
	"github.com/dekarrin/tunatalk/server/dao"
	"github.com/dekarrin/tunatalk/server/dao/inmem"
	"github.com/dekarrin/tunatalk/server/dao/sqlite"
)

const (
	MaxSecretSize = 64
	MinSecretSize = 32
)

// Config is a configuration for a server. It contains all parameters that
// can be used to configure the operation of a TunaTalkServer.
type Config struct {

	// Key is the secret used for signing session tokens.
	Key string `json:"key" toml:"key"`

	// DBPath is the path to the sqlite database file that stores user
	// variable rows. If empty, rows are kept in memory and lost on
	// shutdown.
	DBPath string `json:"db_path" toml:"db_path"`

	// KeepDB makes the server reuse an existing database file instead of
	// recreating it at startup. Only set this when the script's variable
	// definitions have not changed since the database was created.
	KeepDB bool `json:"keep_db" toml:"keep_db"`

	// Sources is the list of script files that together make up the dialog
	// program. They are concatenated in order before parsing.
	Sources []string `json:"source" toml:"source"`

	// Listen is the bind address of the HTTP listener.
	Listen string `json:"listen" toml:"listen"`

	// SessionTTLSecs is the number of seconds a session survives without
	// any request before it is evicted and its token stops working.
	SessionTTLSecs int `json:"session_ttl" toml:"session_ttl"`

	// UnauthDelayMillis is the amount of additional time to wait
	// (in milliseconds) before sending a response that indicates either that
	// the client was unauthorized or the client was unauthenticated. This is
	// something of an "anti-flood" measure for naive clients attempting
	// non-parallel connections. If not set it will default to 1 second
	// (1000ms). Set this to any negative number to disable the delay.
	UnauthDelayMillis int `json:"unauth_delay" toml:"unauth_delay"`
}

// LoadConfig reads a config file. Files ending in .toml are decoded as TOML;
// everything else is decoded as JSON.
func LoadConfig(file string) (Config, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if strings.ToLower(filepath.Ext(file)) == ".toml" {
		err = toml.Unmarshal(data, &cfg)
	} else {
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		return Config{}, fmt.Errorf("decode config %s: %w", file, err)
	}

	return cfg, nil
}

// UnauthDelay returns the configured time for the UnauthDelay as a
// time.Duration. If cfg.UnauthDelayMillis is set to a number less than 0,
// this will return a zero-valued time.Duration.
func (cfg Config) UnauthDelay() time.Duration {
	if cfg.UnauthDelayMillis < 1 {
		var dur time.Duration
		return dur
	}
	return time.Millisecond * time.Duration(cfg.UnauthDelayMillis)
}

// SessionTTL returns the session time-to-live as a time.Duration.
func (cfg Config) SessionTTL() time.Duration {
	return time.Second * time.Duration(cfg.SessionTTLSecs)
}

// FillDefaults returns a new Config identitical to cfg but with unset values
// set to their defaults.
func (cfg Config) FillDefaults() Config {
	newCFG := cfg

	if newCFG.Listen == "" {
		newCFG.Listen = "localhost:8080"
	}
	if newCFG.SessionTTLSecs == 0 {
		newCFG.SessionTTLSecs = 300
	}
	if newCFG.UnauthDelayMillis == 0 {
		newCFG.UnauthDelayMillis = 1000
	}

	return newCFG
}

// Validate returns an error if the Config has invalid field values set.
// Empty and unset values are considered invalid; if defaults are intended to
// be used, call Validate on the return value of FillDefaults.
func (cfg Config) Validate() error {
	if len(cfg.Key) < MinSecretSize {
		return fmt.Errorf("key: must be at least %d bytes, but is %d", MinSecretSize, len(cfg.Key))
	}
	if len(cfg.Key) > MaxSecretSize {
		return fmt.Errorf("key: must be no more than %d bytes, but is %d", MaxSecretSize, len(cfg.Key))
	}
	if len(cfg.Sources) == 0 {
		return fmt.Errorf("source: at least one script file is required")
	}
	if cfg.SessionTTLSecs < 1 {
		return fmt.Errorf("session_ttl: must be a positive number of seconds")
	}

	// all possible values for UnauthDelayMillis are valid, so no need to
	// check it

	return nil
}

// connectStore opens the variable store the config selects: sqlite when a
// database path is configured, in-memory otherwise.
func (cfg Config) connectStore(schema *machine.Schema) (dao.VariableStore, error) {
	if cfg.DBPath == "" {
		return inmem.NewVariableStore(schema), nil
	}

	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0770); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	store, err := sqlite.NewVariableStore(cfg.DBPath, schema, cfg.KeepDB)
	if err != nil {
		return nil, fmt.Errorf("initialize sqlite: %w", err)
	}
	return store, nil
}
