package config

import (
	"log"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server    ServerConfig      `koanf:"server"`
	Ledger    LedgerConfig      `koanf:"ledger"`
	Auth      AuthConfig        `koanf:"auth"`
	Contracts ContractsConfig   `koanf:"contracts"`
	UAVs      map[string]string `koanf:"uavs"`
	LogLevel  string            `koanf:"log_level"`
}

type ServerConfig struct {
	Port         int           `koanf:"port"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
}

type LedgerConfig struct {
	DataDir       string        `koanf:"data_dir"`
	MinePoolSize  int           `koanf:"mine_pool_size"`
	PohDifficulty int           `koanf:"poh_difficulty"`
	StuckAfter    time.Duration `koanf:"stuck_after"`
	VerdictCache  int           `koanf:"verdict_cache"`
}

type AuthConfig struct {
	DataDir    string        `koanf:"data_dir"`
	SessionTTL time.Duration `koanf:"session_ttl"`
	SeedAdmin  bool          `koanf:"seed_admin"`
}

type ContractsConfig struct {
	GeofenceMaxX      float64       `koanf:"geofence_max_x"`
	GeofenceMaxY      float64       `koanf:"geofence_max_y"`
	GeofenceMinAlt    float64       `koanf:"geofence_min_alt"`
	GeofenceMaxAlt    float64       `koanf:"geofence_max_alt"`
	MaxSpeed          float64       `koanf:"max_speed"`
	AltWarnThreshold  float64       `koanf:"alt_warn_threshold"`
	AltCritThreshold  float64       `koanf:"alt_crit_threshold"`
	MaxFlightDuration time.Duration `koanf:"max_flight_duration"`
}

// Load reads the yaml config named by FLIGHTLEDGER_CONFIG (default
// config.yaml, optional) and applies FLIGHTLEDGER_* environment overrides,
// e.g. FLIGHTLEDGER_SERVER_PORT=9020.
func Load() Config {
	k := koanf.New(".")

	configPath := os.Getenv("FLIGHTLEDGER_CONFIG")
	if configPath == "" {
		configPath = "config.yaml"
	}
	if _, err := os.Stat(configPath); err == nil {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			log.Fatalf("error loading config %s: %v", configPath, err)
		}
	}

	err := k.Load(env.Provider("FLIGHTLEDGER_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "FLIGHTLEDGER_")), "_", ".", 1)
	}), nil)
	if err != nil {
		log.Fatalf("error loading env config: %v", err)
	}

	cfg := Defaults()
	if err := k.Unmarshal("", &cfg); err != nil {
		log.Fatalf("error unmarshalling config: %v", err)
	}
	return applyFloors(cfg)
}

// Defaults mirrors the original deployment's constants: four registered
// UAVs, pool of three telemetry samples per block, PoH difficulty two.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:         9020,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Ledger: LedgerConfig{
			DataDir:       "./data",
			MinePoolSize:  3,
			PohDifficulty: 2,
			StuckAfter:    30 * time.Minute,
			VerdictCache:  128,
		},
		Auth: AuthConfig{
			DataDir:    "./data/auth",
			SessionTTL: 24 * time.Hour,
			SeedAdmin:  true,
		},
		Contracts: ContractsConfig{
			GeofenceMaxX:      50,
			GeofenceMaxY:      50,
			GeofenceMinAlt:    -20,
			GeofenceMaxAlt:    0,
			MaxSpeed:          8.0,
			AltWarnThreshold:  -3,
			AltCritThreshold:  -1,
			MaxFlightDuration: 2 * time.Minute,
		},
		UAVs: map[string]string{
			"UAV_A1": "K_LongTerm_A1",
			"UAV_B2": "K_LongTerm_B2",
			"UAV_C3": "K_LongTerm_C3",
			"UAV_D4": "K_LongTerm_D4",
		},
		LogLevel: "info",
	}
}

func applyFloors(cfg Config) Config {
	if cfg.Ledger.MinePoolSize <= 0 {
		cfg.Ledger.MinePoolSize = 3
	}
	if cfg.Ledger.PohDifficulty <= 0 {
		cfg.Ledger.PohDifficulty = 2
	}
	if cfg.Ledger.VerdictCache <= 0 {
		cfg.Ledger.VerdictCache = 128
	}
	if cfg.Auth.SessionTTL <= 0 {
		cfg.Auth.SessionTTL = 24 * time.Hour
	}
	if cfg.Ledger.DataDir == "" {
		cfg.Ledger.DataDir = "./data"
	}
	if cfg.Auth.DataDir == "" {
		cfg.Auth.DataDir = "./data/auth"
	}
	return cfg
}
