package bootstrap

import (
	"errors"
	"fmt"
	"strings"

	"studyhelper/pkg/store"
)

const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
	DriverMemory   = "memory"
)

// StoreConfig selects the metadata database.
type StoreConfig struct {
	StoreDriver   string `yaml:"storeDriver"`
	DatabaseURL   string `yaml:"databaseURL"`
	MongoURI      string `yaml:"mongoURI"`
	MongoDatabase string `yaml:"mongoDatabase"`
}

// ApplyEnv overrides fields from the environment.
func (c *StoreConfig) ApplyEnv() {
	envString("STORE_DRIVER", &c.StoreDriver)
	envString("DATABASE_URL", &c.DatabaseURL)
	envString("MONGODB_URI", &c.MongoURI)
	envString("MONGODB_DATABASE", &c.MongoDatabase)
}

// Driver returns the configured driver, postgres by default.
func (c StoreConfig) Driver() string {
	driver := strings.ToLower(strings.TrimSpace(c.StoreDriver))
	if driver == "" {
		return DriverPostgres
	}
	return driver
}

func (c StoreConfig) Validate() error {
	switch c.Driver() {
	case DriverPostgres:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return errors.New("config: databaseURL is required for the postgres store (set in config.yaml or DATABASE_URL)")
		}
	case DriverMongo:
		if strings.TrimSpace(c.MongoURI) == "" {
			return errors.New("config: mongoURI is required for the mongo store (set in config.yaml or MONGODB_URI)")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("config: unknown storeDriver %q (postgres, mongo, memory)", c.StoreDriver)
	}
	return nil
}

// OpenStore connects to the configured database. Opening runs migrations or
// index creation.
func OpenStore(c StoreConfig) (store.Store, error) {
	switch c.Driver() {
	case DriverPostgres:
		s, err := store.NewGormStore(c.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
		return s, nil
	case DriverMongo:
		s, err := store.NewMongoStore(c.MongoURI, c.MongoDatabase)
		if err != nil {
			return nil, fmt.Errorf("init mongo store: %w", err)
		}
		return s, nil
	case DriverMemory:
		return store.NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("unknown store driver %q", c.StoreDriver)
}
