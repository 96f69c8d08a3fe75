package commons

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/mirareader/mira-pool/commons"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func SetCommonFlags(command *cobra.Command) {
	command.Flags().BoolP("version", "v", false, "Print version")
	command.Flags().BoolP("help", "h", false, "Print help")
	command.Flags().BoolP("debug", "d", false, "Enable debug mode")
	command.Flags().BoolP("profile", "", false, "Enable profiling")
	command.Flags().BoolP("env", "", false, "Read config from environmental variables (MIRA_*)")

	command.Flags().StringP("config", "", "", "Set config file (yaml)")
	command.Flags().StringP("endpoint", "", commons.ServiceEndpointDefault, "Set service endpoint (host:port or unix:///file.sock)")
	command.Flags().IntP("media_port", "", commons.MediaServicePortDefault, "Set media service port, 0 disables it")
	command.Flags().StringP("api_url", "", commons.APIBaseURLDefault, "Set base URL of the remote catalog API")
	command.Flags().StringP("data_root", "", "", "Set data root path for downloads, the library and the disk image cache")
	command.Flags().Int64P("image_cache_size_max", "", commons.ImageCacheSizeMaxDefault, "Set memory image cache max size in KiB")
	command.Flags().Int64P("disk_cache_size_max", "", commons.DiskImageCacheSizeMaxDefault, "Set disk image cache max size in bytes, 0 disables it")
	command.Flags().Float64P("page_rate_limit", "", commons.PageRateLimitDefault, "Set max page fetches per second of the downloader, 0 is unlimited")
	command.Flags().StringP("log", "", "", "Set log file path, - for stderr only")

	command.Flags().IntP("profile_port", "", commons.ProfileServicePortDefault, "Set profile service port")
	command.Flags().IntP("prometheus_exporter_port", "", commons.PrometheusExporterPortDefault, "Set prometheus exporter port, 0 disables it")
}

func getBoolFlag(command *cobra.Command, name string) bool {
	flag := command.Flags().Lookup(name)
	if flag == nil {
		return false
	}

	value, err := strconv.ParseBool(flag.Value.String())
	if err != nil {
		return false
	}

	return value
}

// getChangedFlag returns the flag value only if it is given in the command-line
func getChangedFlag(command *cobra.Command, name string) (string, bool) {
	flag := command.Flags().Lookup(name)
	if flag == nil || !flag.Changed {
		return "", false
	}

	return flag.Value.String(), true
}

func ProcessCommonFlags(command *cobra.Command) (*commons.Config, io.WriteCloser, bool, error) {
	logger := log.WithFields(log.Fields{
		"package":  "commons",
		"function": "ProcessCommonFlags",
	})

	debug := getBoolFlag(command, "debug")
	if debug {
		log.SetLevel(log.DebugLevel)
	}

	if getBoolFlag(command, "help") {
		PrintHelp(command)
		return nil, nil, false, nil // stop here
	}

	if getBoolFlag(command, "version") {
		PrintVersion(command)
		return nil, nil, false, nil // stop here
	}

	var config *commons.Config

	if configPath, ok := getChangedFlag(command, "config"); ok && len(configPath) > 0 {
		yamlBytes, err := os.ReadFile(configPath)
		if err != nil {
			logger.Error(err)
			return nil, nil, false, err // stop here
		}

		serverConfig, err := commons.NewConfigFromYAML(yamlBytes)
		if err != nil {
			logger.Error(err)
			return nil, nil, false, err // stop here
		}

		config = serverConfig
	} else if getBoolFlag(command, "env") {
		envConfig, err := commons.NewConfigFromENV()
		if err != nil {
			logger.Error(err)
			return nil, nil, false, err // stop here
		}

		config = envConfig
	} else {
		config = commons.NewDefaultConfig()
	}

	// prioritize command-line flag over config files
	err := applyFlags(command, config)
	if err != nil {
		logger.Error(err)
		return nil, nil, false, err // stop here
	}

	if debug {
		config.Debug = true
	}

	if getBoolFlag(command, "profile") {
		config.Profile = true
	}

	err = config.Validate()
	if err != nil {
		logger.Error(err)
		return nil, nil, false, err // stop here
	}

	if config.Debug {
		log.SetLevel(log.DebugLevel)
	}

	var logWriter io.WriteCloser
	logFilePath := config.GetLogFilePath()
	if len(logFilePath) == 0 {
		log.SetOutput(os.Stderr)
	} else {
		logWriter = getLogWriter(logFilePath)

		// use multi output - to output to file and stderr
		mw := io.MultiWriter(os.Stderr, logWriter)
		log.SetOutput(mw)

		logger.Infof("Logging to %s", logFilePath)
	}

	return config, logWriter, true, nil // continue
}

func applyFlags(command *cobra.Command, config *commons.Config) error {
	if endpoint, ok := getChangedFlag(command, "endpoint"); ok && len(endpoint) > 0 {
		config.ServiceEndpoint = endpoint
	}

	if mediaPort, ok := getChangedFlag(command, "media_port"); ok {
		port, err := strconv.ParseInt(mediaPort, 10, 32)
		if err != nil {
			return fmt.Errorf("failed to convert media_port %q to int - %v", mediaPort, err)
		}
		config.MediaServicePort = int(port)
	}

	if apiURL, ok := getChangedFlag(command, "api_url"); ok && len(apiURL) > 0 {
		config.APIBaseURL = apiURL
	}

	if dataRoot, ok := getChangedFlag(command, "data_root"); ok && len(dataRoot) > 0 {
		config.DataRootPath = dataRoot
	}

	if imageCacheSizeMax, ok := getChangedFlag(command, "image_cache_size_max"); ok {
		size, err := strconv.ParseInt(imageCacheSizeMax, 10, 64)
		if err != nil {
			return fmt.Errorf("failed to convert image_cache_size_max %q to int64 - %v", imageCacheSizeMax, err)
		}
		config.ImageCacheSizeMax = size
	}

	if diskCacheSizeMax, ok := getChangedFlag(command, "disk_cache_size_max"); ok {
		size, err := strconv.ParseInt(diskCacheSizeMax, 10, 64)
		if err != nil {
			return fmt.Errorf("failed to convert disk_cache_size_max %q to int64 - %v", diskCacheSizeMax, err)
		}
		config.DiskImageCacheSizeMax = size
	}

	if pageRateLimit, ok := getChangedFlag(command, "page_rate_limit"); ok {
		limit, err := strconv.ParseFloat(pageRateLimit, 64)
		if err != nil {
			return fmt.Errorf("failed to convert page_rate_limit %q to float64 - %v", pageRateLimit, err)
		}
		config.PageRateLimit = limit
	}

	if logPath, ok := getChangedFlag(command, "log"); ok {
		config.LogPath = logPath
	}

	if profilePort, ok := getChangedFlag(command, "profile_port"); ok {
		port, err := strconv.ParseInt(profilePort, 10, 32)
		if err != nil {
			return fmt.Errorf("failed to convert profile_port %q to int - %v", profilePort, err)
		}
		config.ProfileServicePort = int(port)
	}

	if prometheusExporterPort, ok := getChangedFlag(command, "prometheus_exporter_port"); ok {
		port, err := strconv.ParseInt(prometheusExporterPort, 10, 32)
		if err != nil {
			return fmt.Errorf("failed to convert prometheus_exporter_port %q to int - %v", prometheusExporterPort, err)
		}
		config.PrometheusExporterPort = int(port)
	}

	return nil
}

func PrintVersion(command *cobra.Command) error {
	info, err := commons.GetVersionJSON()
	if err != nil {
		return err
	}

	fmt.Println(info)
	return nil
}

func PrintHelp(command *cobra.Command) error {
	return command.Usage()
}

func getLogWriter(logPath string) io.WriteCloser {
	return &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    50, // 50MB
		MaxBackups: 5,
		MaxAge:     30, // 30 days
		Compress:   false,
	}
}
