package main

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/profile"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	cmd_commons "github.com/mirareader/mira-pool/cmd/commons"
	"github.com/mirareader/mira-pool/commons"
	"github.com/mirareader/mira-pool/service"
	log "github.com/sirupsen/logrus"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "mira-pool [args..]",
	Short: "Run Mira Pool Service",
	Long:  "Run Mira Pool Service that serves manga catalogs, pages, downloads and the library to Mira readers.",
	RunE:  processCommand,
}

func Execute() error {
	return rootCmd.Execute()
}

func processCommand(command *cobra.Command, args []string) error {
	logger := log.WithFields(log.Fields{
		"package":  "main",
		"function": "processCommand",
	})

	config, logWriter, cont, err := cmd_commons.ProcessCommonFlags(command)
	if logWriter != nil {
		defer logWriter.Close()
	}

	if err != nil {
		logger.Error(err)
		return err
	}

	if !cont {
		return nil
	}

	err = run(config)
	if err != nil {
		logger.WithError(err).Error("failed to run Mira Pool Service")
		return err
	}

	return nil
}

func main() {
	log.SetFormatter(&log.TextFormatter{
		TimestampFormat: "2006-01-02 15:04:05.000000",
		FullTimestamp:   true,
	})

	log.SetLevel(log.InfoLevel)

	logger := log.WithFields(log.Fields{
		"package":  "main",
		"function": "main",
	})

	// attach common flags
	cmd_commons.SetCommonFlags(rootCmd)
	rootCmd.SilenceUsage = true

	err := Execute()
	if err != nil {
		logger.Fatal(err)
		os.Exit(1)
	}
}

// run runs Mira Pool Service in foreground until it gets a signal
func run(config *commons.Config) error {
	logger := log.WithFields(log.Fields{
		"package":  "main",
		"function": "run",
	})

	if config.Debug {
		log.SetLevel(log.DebugLevel)
	}

	versionInfo := commons.GetVersion()
	logger.Infof("Mira Pool Service version - %s, commit - %s", versionInfo.ServiceVersion, versionInfo.GitCommit)

	// profile
	if config.Profile && config.ProfileServicePort > 0 {
		go func() {
			profileServiceAddr := fmt.Sprintf(":%d", config.ProfileServicePort)

			logger.Infof("Starting profile service at %s", profileServiceAddr)
			http.ListenAndServe(profileServiceAddr, nil)
		}()

		prof := profile.Start(profile.MemProfile)
		defer prof.Stop()
	}

	var prometheusExporterServer *http.Server
	if config.PrometheusExporterPort > 0 {
		prometheusExporterAddr := fmt.Sprintf(":%d", config.PrometheusExporterPort)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		prometheusExporterServer = &http.Server{Addr: prometheusExporterAddr, Handler: mux}

		go func() {
			logger.Infof("Starting prometheus exporter at %s", prometheusExporterAddr)
			err := prometheusExporterServer.ListenAndServe()
			if err != nil && err != http.ErrServerClosed {
				logger.WithError(err).Error("prometheus exporter stopped")
			}
		}()
	}

	// run a service
	svc, err := service.NewPoolService(config)
	if err != nil {
		logger.WithError(err).Error("failed to create the service")
		return err
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- svc.Start()
	}()

	defer func() {
		if prometheusExporterServer != nil {
			prometheusExporterServer.Shutdown(context.TODO())
		}

		svc.Stop()

		// remove transient dirs
		config.CleanWorkDirs()
	}()

	// wait
	select {
	case err := <-errChan:
		if err != nil {
			logger.WithError(err).Error("failed to start the service")
			return err
		}
	case <-waitForCtrlC():
		logger.Info("Received a signal, stopping the service")
	}

	return nil
}

func waitForCtrlC() <-chan os.Signal {
	signalChannel := make(chan os.Signal, 1)
	signal.Notify(signalChannel, os.Interrupt, syscall.SIGTERM)
	return signalChannel
}
