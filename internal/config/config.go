package config

import (
	"os"

	"github.com/go-yaml/yaml"
)

type Config struct {
	Server Server `yaml:"server"`
	Remote Remote `yaml:"remote"`
	Cache  Cache  `yaml:"cache"`
}

type Server struct {
	Listen        string `yaml:"listen"`
	AdminToken    string `yaml:"adminToken"`
	PostgresDsn   string `yaml:"postgresDsn"`
	RedisAddr     string `yaml:"redisAddr"`
	RedisDB       int    `yaml:"redisDB"`
	MemcachedAddr string `yaml:"memcachedAddr"`
	EnableTrace   bool   `yaml:"enableTrace"`
	TraceEndpoint string `yaml:"traceEndpoint"`
}

// Remote is the developer-management API this instance fronts.
type Remote struct {
	Endpoint     string `yaml:"endpoint"`
	Organization string `yaml:"organization"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
}

type Cache struct {
	Backend    string `yaml:"backend"`    // redis, memcached, none
	TTLSeconds int    `yaml:"ttlSeconds"` // persistent entry expiration
}

func Load(path string) (Config, error) {

	file, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer file.Close()

	var config Config
	err = yaml.NewDecoder(file).Decode(&config)
	if err != nil {
		return Config{}, err
	}

	if config.Server.Listen == "" {
		config.Server.Listen = ":8000"
	}
	if config.Cache.Backend == "" {
		config.Cache.Backend = "redis"
	}
	if config.Cache.TTLSeconds <= 0 {
		config.Cache.TTLSeconds = 900
	}

	return config, nil
}
