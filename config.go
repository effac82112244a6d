package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"gps_hyperlapse/internal/hyperlapse"
)

// Config is the optional YAML file passed with -config. Flags given on the
// command line win over values from the file.
type Config struct {
	Hyperlapse hyperlapse.Options `yaml:"hyperlapse"`
	Panoramas  PanoramaConfig     `yaml:"panoramas"`
	Elevation  ElevationConfig    `yaml:"elevation"`
	Redis      RedisConfig        `yaml:"redis"`
}

type PanoramaConfig struct {
	BaseURL       string  `yaml:"base_url"`
	SearchRadius  float64 `yaml:"search_radius"`
	MaxImageWidth int     `yaml:"max_image_width"`
	CacheDir      string  `yaml:"cache_dir"`
}

type ElevationConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

func defaultConfig() *Config {
	return &Config{
		Panoramas: PanoramaConfig{
			BaseURL:       "https://graph.mapillary.com",
			SearchRadius:  25,
			MaxImageWidth: 2048,
			CacheDir:      "panoramas",
		},
		Elevation: ElevationConfig{
			URL: "https://api.open-elevation.com/api/v1/lookup",
		},
		Redis: RedisConfig{
			TTL: 7 * 24 * time.Hour,
		},
	}
}

// loadConfig reads the YAML config at path over the defaults. An empty path
// returns the defaults.
func loadConfig(path string) (*Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// applyArguments lets command line flags override the file.
func (c *Config) applyArguments(args *Arguments) {
	if args.Lookat != nil {
		c.Hyperlapse.Lookat = args.Lookat
		c.Hyperlapse.UseLookat = true
	}
	switch args.Elevation {
	case "gpx", "open":
		c.Hyperlapse.UseElevation = true
	case "off":
		c.Hyperlapse.UseElevation = false
	}
}

// loadEnv loads the .env file if there is one and fills in secrets that
// never belong in the YAML file.
func (c *Config) loadEnv(path string) error {
	if path != "" {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load env: %w", err)
		}
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASS"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Redis.DB = n
		} else {
			log.Printf("Ignoring invalid REDIS_DB %q", v)
		}
	}
	return nil
}

func mapillaryToken() string {
	return os.Getenv("MAPILLARY_TOKEN")
}
