package commons

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/xid"
	yaml "gopkg.in/yaml.v2"
)

const (
	ServiceEndpointDefault         string        = "unix:///tmp/mira_pool.sock"
	MediaServicePortDefault        int           = 12030
	APIBaseURLDefault              string        = "http://localhost:8080/api"
	DataRootPathPrefixDefault      string        = "/tmp/mira_pool_data"
	LogFilePathPrefixDefault       string        = "/tmp/mira_pool"
	ImageCacheSizeMaxDefault       int64         = 50 * 1024          // 50MB, in KiB of decoded pixels
	DiskImageCacheSizeMaxDefault   int64         = 1024 * 1024 * 1024 // 1GB
	MetadataCacheTimeoutDefault    time.Duration = 5 * time.Minute
	DownloadPollIntervalDefault    time.Duration = 500 * time.Millisecond
	ImageFetchMaxAttemptsDefault   int           = 10
	OperationTimeoutDefault        time.Duration = 30 * time.Second
	ProfileServicePortDefault      int           = 12031
	PrometheusExporterPortDefault  int           = 12032
	PageRateLimitDefault           float64       = 0 // unlimited
	HTTPClientTimeoutDefault       time.Duration = 60 * time.Second
	ClientSessionTimeoutDefault    time.Duration = 10 * time.Minute
	downloadedChaptersDirName      string        = "downloads"
	diskImageCacheDirName          string        = "image_cache"
	libraryDBFileName              string        = "library.db"
	unixSocketEndpointSchemePrefix string        = "unix://"
	tcpEndpointSchemePrefix        string        = "tcp://"
)

var (
	instanceID string
)

// getInstanceID returns instance ID
func getInstanceID() string {
	if len(instanceID) == 0 {
		instanceID = xid.New().String()
	}

	return instanceID
}

// GetDefaultLogFilePath returns default log file path
func GetDefaultLogFilePath() string {
	return fmt.Sprintf("%s_%s.log", LogFilePathPrefixDefault, getInstanceID())
}

// GetDefaultDataRootPath returns default data root path
func GetDefaultDataRootPath() string {
	return fmt.Sprintf("%s_%s", DataRootPathPrefixDefault, getInstanceID())
}

// Config holds the parameters list which can be configured
type Config struct {
	ServiceEndpoint  string `envconfig:"MIRA_SERVICE_ENDPOINT" yaml:"service_endpoint"`
	MediaServicePort int    `envconfig:"MIRA_MEDIA_SERVICE_PORT" yaml:"media_service_port"`
	APIBaseURL       string `envconfig:"MIRA_API_BASE_URL" yaml:"api_base_url"`
	DataRootPath     string `envconfig:"MIRA_DATA_ROOT_PATH" yaml:"data_root_path"`

	ImageCacheSizeMax     int64         `envconfig:"MIRA_IMAGE_CACHE_SIZE_MAX" yaml:"image_cache_size_max"`
	DiskImageCacheSizeMax int64         `envconfig:"MIRA_DISK_IMAGE_CACHE_SIZE_MAX" yaml:"disk_image_cache_size_max"`
	MetadataCacheTimeout  time.Duration `envconfig:"MIRA_METADATA_CACHE_TIMEOUT" yaml:"metadata_cache_timeout"`
	DownloadPollInterval  time.Duration `envconfig:"MIRA_DOWNLOAD_POLL_INTERVAL" yaml:"download_poll_interval"`
	PageRateLimit         float64       `envconfig:"MIRA_PAGE_RATE_LIMIT" yaml:"page_rate_limit,omitempty"`
	ImageFetchMaxAttempts int           `envconfig:"MIRA_IMAGE_FETCH_MAX_ATTEMPTS" yaml:"image_fetch_max_attempts"`
	HTTPClientTimeout     time.Duration `envconfig:"MIRA_HTTP_CLIENT_TIMEOUT" yaml:"http_client_timeout"`
	ClientSessionTimeout  time.Duration `envconfig:"MIRA_CLIENT_SESSION_TIMEOUT" yaml:"client_session_timeout"`

	LogPath string `envconfig:"MIRA_LOG_PATH" yaml:"log_path,omitempty"`

	Debug                  bool `envconfig:"MIRA_DEBUG" yaml:"debug,omitempty"`
	Profile                bool `envconfig:"MIRA_PROFILE" yaml:"profile,omitempty"`
	ProfileServicePort     int  `envconfig:"MIRA_PROFILE_SERVICE_PORT" yaml:"profile_service_port,omitempty"`
	PrometheusExporterPort int  `envconfig:"MIRA_PROMETHEUS_EXPORTER_PORT" yaml:"prometheus_exporter_port,omitempty"`

	InstanceID string `yaml:"instanceid,omitempty"`
}

// NewDefaultConfig creates DefaultConfig
func NewDefaultConfig() *Config {
	return &Config{
		ServiceEndpoint:  ServiceEndpointDefault,
		MediaServicePort: MediaServicePortDefault,
		APIBaseURL:       APIBaseURLDefault,
		DataRootPath:     GetDefaultDataRootPath(),

		ImageCacheSizeMax:     ImageCacheSizeMaxDefault,
		DiskImageCacheSizeMax: DiskImageCacheSizeMaxDefault,
		MetadataCacheTimeout:  MetadataCacheTimeoutDefault,
		DownloadPollInterval:  DownloadPollIntervalDefault,
		PageRateLimit:         PageRateLimitDefault,
		ImageFetchMaxAttempts: ImageFetchMaxAttemptsDefault,
		HTTPClientTimeout:     HTTPClientTimeoutDefault,
		ClientSessionTimeout:  ClientSessionTimeoutDefault,

		LogPath: "",

		Debug:                  false,
		Profile:                false,
		ProfileServicePort:     ProfileServicePortDefault,
		PrometheusExporterPort: PrometheusExporterPortDefault,

		InstanceID: getInstanceID(),
	}
}

// NewConfigFromYAML creates Config from YAML
func NewConfigFromYAML(yamlBytes []byte) (*Config, error) {
	config := NewDefaultConfig()

	err := yaml.Unmarshal(yamlBytes, config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML - %v", err)
	}

	return config, nil
}

// NewConfigFromENV creates Config from Environmental Variables
func NewConfigFromENV() (*Config, error) {
	config := NewDefaultConfig()

	err := envconfig.Process("", config)
	if err != nil {
		return nil, fmt.Errorf("failed to read environmental variables - %v", err)
	}

	return config, nil
}

// GetLogFilePath returns log file path
func (config *Config) GetLogFilePath() string {
	if config.LogPath == "-" {
		return ""
	}

	return config.LogPath
}

// GetDownloadRootPath returns the root dir of downloaded chapters
func (config *Config) GetDownloadRootPath() string {
	return filepath.Join(config.DataRootPath, downloadedChaptersDirName)
}

// GetDiskImageCacheRootPath returns the root dir of the disk image cache
func (config *Config) GetDiskImageCacheRootPath() string {
	return filepath.Join(config.DataRootPath, diskImageCacheDirName)
}

// GetLibraryDBPath returns the path of the library database
func (config *Config) GetLibraryDBPath() string {
	return filepath.Join(config.DataRootPath, libraryDBFileName)
}

// MakeWorkDirs makes dirs required
func (config *Config) MakeWorkDirs() error {
	dirs := []string{
		config.DataRootPath,
		config.GetDownloadRootPath(),
	}

	if config.DiskImageCacheSizeMax > 0 {
		dirs = append(dirs, config.GetDiskImageCacheRootPath())
	}

	for _, dir := range dirs {
		err := os.MkdirAll(dir, 0755)
		if err != nil {
			return fmt.Errorf("failed to make dir %q - %v", dir, err)
		}
	}

	return nil
}

// CleanWorkDirs removes transient dirs, downloaded chapters and the library are kept
func (config *Config) CleanWorkDirs() error {
	if config.DiskImageCacheSizeMax > 0 {
		return os.RemoveAll(config.GetDiskImageCacheRootPath())
	}

	return nil
}

// Validate validates configuration
func (config *Config) Validate() error {
	if len(config.ServiceEndpoint) == 0 {
		return fmt.Errorf("service endpoint must be given")
	}

	if _, _, err := ParsePoolServiceEndpoint(config.ServiceEndpoint); err != nil {
		return err
	}

	if len(config.APIBaseURL) == 0 {
		return fmt.Errorf("API base URL must be given")
	}

	if len(config.DataRootPath) == 0 {
		return fmt.Errorf("data root path must be given")
	}

	if config.ImageCacheSizeMax <= 0 {
		return fmt.Errorf("image cache size must be positive")
	}

	if config.ImageFetchMaxAttempts <= 0 {
		return fmt.Errorf("image fetch max attempts must be positive")
	}

	if config.DownloadPollInterval <= 0 {
		return fmt.Errorf("download poll interval must be positive")
	}

	if config.PageRateLimit < 0 {
		return fmt.Errorf("page rate limit must not be negative")
	}

	if config.Profile && config.ProfileServicePort <= 0 {
		return fmt.Errorf("profile service port must be given")
	}

	return nil
}

// ParsePoolServiceEndpoint parses endpoint string, returns network ("unix" or "tcp") and address
func ParsePoolServiceEndpoint(endpoint string) (string, string, error) {
	switch {
	case strings.HasPrefix(endpoint, unixSocketEndpointSchemePrefix):
		path := strings.TrimPrefix(endpoint, unixSocketEndpointSchemePrefix)
		if len(path) == 0 {
			return "", "", fmt.Errorf("empty unix socket path in endpoint %q", endpoint)
		}
		return "unix", path, nil
	case strings.HasPrefix(endpoint, tcpEndpointSchemePrefix):
		return "tcp", strings.TrimPrefix(endpoint, tcpEndpointSchemePrefix), nil
	case strings.Contains(endpoint, "://"):
		return "", "", fmt.Errorf("unsupported endpoint scheme %q", endpoint)
	default:
		return "tcp", endpoint, nil
	}
}
