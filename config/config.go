// Package config loads the settings of the casc command from a YAML file.
//
// The file is named by the CASC_CONFIG environment variable or by the
// --config flag. Command line flags override the values it holds.
package config

import (
	"bytes"
	"encoding/hex"
	"log/slog"
	"os"

	"github.com/brecky/casc"
	"github.com/brecky/casc/common"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// EnvVar names the environment variable holding the config file path.
const EnvVar = "CASC_CONFIG"

// Config selects the storage to open and how to read it.
type Config struct {
	// InstallDir is the root of a local game install.
	InstallDir string `yaml:"install_dir"`

	// Mirror describes a CDN mirror. It is used when InstallDir is empty.
	Mirror MirrorConfig `yaml:"mirror"`

	// Locale selects the variant of localised files, "all" reads the first
	// variant of each file.
	Locale string `yaml:"locale"`

	// Listfile names storage paths for root manifests that only hold hashes.
	Listfile string `yaml:"listfile"`

	VerifyChecksums  bool `yaml:"verify_checksums"`
	HeaderCacheSize  int  `yaml:"header_cache_size"`
	IndexConcurrency int  `yaml:"index_concurrency"`

	// Verbose enables debug logging and stack traces in errors.
	Verbose bool `yaml:"verbose"`
}

// MirrorConfig locates the build of a CDN mirror. The config hashes are
// either given directly or looked up by region in a saved versions file.
type MirrorConfig struct {
	Dir          string `yaml:"dir"`
	BuildConfig  string `yaml:"build_config"`
	CdnConfig    string `yaml:"cdn_config"`
	VersionsFile string `yaml:"versions_file"`
	Region       string `yaml:"region"`
}

// Default returns the configuration used before the file is applied.
func Default() *Config {
	return &Config{
		Locale:           "all",
		HeaderCacheSize:  4096,
		IndexConcurrency: 4,
		Mirror:           MirrorConfig{Region: "us"},
	}
}

// Load reads the file named by CASC_CONFIG. Without it the defaults are
// returned.
func Load() (*Config, error) {
	path := os.Getenv(EnvVar)
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}

// LoadFile reads the config file at path over the defaults. ${VAR}
// references in paths are expanded.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "config %s", path)
	}
	cfg.expandVariables()
	return cfg, nil
}

func (c *Config) expandVariables() {
	c.InstallDir = os.ExpandEnv(c.InstallDir)
	c.Listfile = os.ExpandEnv(c.Listfile)
	c.Mirror.Dir = os.ExpandEnv(c.Mirror.Dir)
	c.Mirror.VersionsFile = os.ExpandEnv(c.Mirror.VersionsFile)
}

// Validate checks that exactly one storage is selected and that the
// values can be used.
func (c *Config) Validate() error {
	if (c.InstallDir == "") == (c.Mirror.Dir == "") {
		return errors.New("exactly one of install_dir and mirror.dir must be set")
	}
	if _, err := common.ParseLocale(c.Locale); err != nil {
		return err
	}
	if c.Mirror.Dir == "" {
		return nil
	}
	if c.Mirror.VersionsFile == "" {
		if c.Mirror.BuildConfig == "" || c.Mirror.CdnConfig == "" {
			return errors.New("mirror needs build_config and cdn_config or a versions_file")
		}
		for _, h := range []string{c.Mirror.BuildConfig, c.Mirror.CdnConfig} {
			if _, err := hex.DecodeString(h); err != nil {
				return errors.Wrapf(common.ErrFormat, "config hash %q", h)
			}
		}
	}
	return nil
}

// ResolveMirror fills the mirror config hashes from the versions file
// when they are not set.
func (c *Config) ResolveMirror() error {
	if c.Mirror.BuildConfig != "" && c.Mirror.CdnConfig != "" {
		return nil
	}
	if c.Mirror.VersionsFile == "" {
		return errors.New("no versions file to resolve the mirror build from")
	}
	data, err := os.ReadFile(c.Mirror.VersionsFile)
	if err != nil {
		return errors.WithStack(err)
	}
	versions, err := common.ParseVersions(bytes.NewReader(data))
	if err != nil {
		return err
	}
	for _, v := range versions {
		if v.Region != c.Mirror.Region {
			continue
		}
		c.Mirror.BuildConfig = hex.EncodeToString(v.BuildConfigHash)
		c.Mirror.CdnConfig = hex.EncodeToString(v.CDNConfigHash)
		return nil
	}
	return errors.Errorf("region %q not found in %s", c.Mirror.Region, c.Mirror.VersionsFile)
}

// Options converts the config to Explorer options.
func (c *Config) Options(logger *slog.Logger) ([]casc.Option, error) {
	locale, err := common.ParseLocale(c.Locale)
	if err != nil {
		return nil, err
	}
	opts := []casc.Option{
		casc.WithLogger(logger),
		casc.WithLocale(locale),
		casc.WithVerifyChecksums(c.VerifyChecksums),
		casc.WithHeaderCacheSize(c.HeaderCacheSize),
		casc.WithIndexConcurrency(c.IndexConcurrency),
	}
	if c.Listfile != "" {
		opts = append(opts, casc.WithListfile(c.Listfile))
	}
	return opts, nil
}
