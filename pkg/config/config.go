package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/shirou/gopsutil/v3/host"
)

type Config struct {
	path      string
	configDir string

	// Actual Config
	DataDir     string `json:"data-dir"`
	InstanceDir string `json:"instance-dir"`
	Manifest    string `json:"manifest"`
	Jobs        int    `json:"jobs"`
}

const (
	DefaultConfigPath  = "~/.config/forge/config.json"
	DefaultDataDir     = "~/.cache/forge"
	DefaultInstanceDir = "instance"
	DefaultManifest    = "forge.yaml"
)

func LoadConfig() (*Config, error) {
	if loc := os.Getenv("FORGE_CONFIG"); loc != "" {
		return loadFile(loc)
	}

	path, err := homedir.Expand(DefaultConfigPath)
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(path); err == nil {
		return loadFile(path)
	}

	dir := filepath.Dir(path)

	err = os.MkdirAll(dir, 0755)
	if err != nil {
		return nil, err
	}

	dataDir, err := homedir.Expand(DefaultDataDir)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		path:      path,
		configDir: dir,

		DataDir:     dataDir,
		InstanceDir: DefaultInstanceDir,
		Manifest:    DefaultManifest,
	}

	return updateFromEnv(cfg)
}

func loadFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	defer f.Close()

	var cfg Config

	err = json.NewDecoder(f).Decode(&cfg)
	if err != nil {
		return nil, err
	}

	cfg.path = path
	cfg.configDir = filepath.Dir(path)

	if cfg.DataDir == "" {
		dataDir, err := homedir.Expand(DefaultDataDir)
		if err != nil {
			return nil, err
		}

		cfg.DataDir = dataDir
	}

	if cfg.InstanceDir == "" {
		cfg.InstanceDir = DefaultInstanceDir
	}

	if cfg.Manifest == "" {
		cfg.Manifest = DefaultManifest
	}

	return updateFromEnv(&cfg)
}

func updateFromEnv(cfg *Config) (*Config, error) {
	if path := os.Getenv("FORGE_DATA_DIR"); path != "" {
		cfg.DataDir = path
	}

	if path := os.Getenv("FORGE_INSTANCE"); path != "" {
		cfg.InstanceDir = path
	}

	if path := os.Getenv("FORGE_MANIFEST"); path != "" {
		cfg.Manifest = path
	}

	return ensureDirs(cfg)
}

func ensureDirs(cfg *Config) (*Config, error) {
	dirs := []string{
		cfg.DataDir,
		cfg.BuildPath(),
		cfg.StatePath(),
		cfg.CachePath(),
		cfg.SourcePath(),
	}

	for _, dir := range dirs {
		fi, err := os.Stat(dir)
		if err != nil {
			if os.IsNotExist(err) {
				err = os.MkdirAll(dir, 0755)
				if err != nil {
					return nil, err
				}
			}
		} else if !fi.IsDir() {
			return nil, fmt.Errorf("path is not a directory: %s", dir)
		}
	}

	return cfg, nil
}

func (c *Config) ConfigDir() string {
	return c.configDir
}

// BuildPath holds per-build scratch directories, removed after install.
func (c *Config) BuildPath() string {
	return filepath.Join(c.DataDir, "build")
}

func (c *Config) StatePath() string {
	return filepath.Join(c.DataDir, "state")
}

// CachePath holds bare git mirrors, keyed by hashed origin.
func (c *Config) CachePath() string {
	return filepath.Join(c.DataDir, "cache", "vcs")
}

// SourcePath holds materialized source trees, one per name@ref.
func (c *Config) SourcePath() string {
	return filepath.Join(c.DataDir, "repo")
}

func (c *Config) InstancePath() (string, error) {
	return filepath.Abs(c.InstanceDir)
}

func (c *Config) LockPath() string {
	return filepath.Join(c.StatePath(), "forge.lock")
}

func Platform() (string, string, string) {
	osName, _, osVersion, err := host.PlatformInformation()
	if err != nil {
		panic(err)
	}

	arch, err := host.KernelArch()
	if err != nil {
		panic(err)
	}

	return osName, osVersion, arch
}

func SystemConstraints() map[string]string {
	osName, osVersion, arch := Platform()

	constraints := map[string]string{
		"machine/arch": arch,
		"os/name":      osName,
	}

	if osName == "darwin" {
		// Strip off the minor version
		dot := strings.LastIndexByte(osVersion, '.')
		if dot != -1 {
			osVersion = osVersion[:dot]
		}

		constraints["darwin/version"] = osVersion
	}

	return constraints
}

func (c *Config) Constraints() map[string]string {
	constraints := SystemConstraints()
	constraints["forge/root"] = c.DataDir

	return constraints
}
