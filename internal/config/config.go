package config

import (
	"log"
	"os"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server struct {
		Address string `yaml:"address"`
	} `yaml:"server"`
	Database struct {
		Driver string `yaml:"driver"`
		URL    string `yaml:"url"`
	} `yaml:"database"`
	Redis struct {
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	AppStore struct {
		VerificationURL string `yaml:"verification_url"`
	} `yaml:"app_store"`
	SecureStore struct {
		Namespace string `yaml:"namespace"`
	} `yaml:"secure_store"`
	Firebase struct {
		CredentialsFile  string `yaml:"credentials_file"`
		MirrorCollection string `yaml:"mirror_collection"`
	} `yaml:"firebase"`
	Mirror struct {
		ReconcileIntervalMinutes int `yaml:"reconcile_interval_minutes"`
	} `yaml:"mirror"`
}

func LoadConfig() Config {
	var cfg Config

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("Failed to read config file: %v", err)
	}

	err = yaml.Unmarshal(data, &cfg)
	if err != nil {
		log.Fatalf("Failed to unmarshal config data: %v", err)
	}
	return cfg
}
