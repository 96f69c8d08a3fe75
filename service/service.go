package service

import (
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/mirareader/mira-pool/commons"
	"github.com/mirareader/mira-pool/service/api"
	log "github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
	"google.golang.org/grpc"
)

const (
	statLogInterval time.Duration = 1 * time.Minute
)

// PoolService serves the control API over gRPC and media over HTTP
type PoolService struct {
	config *commons.Config

	poolServer  *PoolServer
	statHandler *PoolServiceStatHandler
	grpcServer  *grpc.Server
	mediaServer *MediaServer

	terminateChan chan bool
	terminated    bool
	mutex         sync.Mutex // for termination
}

// NewPoolService creates a new pool service
func NewPoolService(config *commons.Config) (*PoolService, error) {
	logger := log.WithFields(log.Fields{
		"package":  "service",
		"function": "NewPoolService",
	})

	poolServer, err := NewPoolServer(config)
	if err != nil {
		logger.WithError(err).Error("failed to create a new pool server")
		return nil, err
	}

	statHandler := NewPoolServiceStatHandler(poolServer)
	grpcServer := grpc.NewServer(
		grpc.ForceServerCodec(api.Codec()),
		grpc.StatsHandler(statHandler),
		grpc.UnaryInterceptor(statHandler.UnaryInterceptor),
	)
	api.RegisterMiraPoolAPIServer(grpcServer, poolServer)

	return &PoolService{
		config: config,

		poolServer:  poolServer,
		statHandler: statHandler,
		grpcServer:  grpcServer,
		mediaServer: NewMediaServer(poolServer, commons.OperationTimeoutDefault),

		terminateChan: make(chan bool),
	}, nil
}

// GetPoolServer returns the pool server
func (svc *PoolService) GetPoolServer() *PoolServer {
	return svc.poolServer
}

func listenServiceEndpoint(endpoint string) (net.Listener, error) {
	scheme, address, err := commons.ParsePoolServiceEndpoint(endpoint)
	if err != nil {
		return nil, err
	}

	if scheme == "unix" {
		// remove a socket left by a previous run
		err = os.Remove(address)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, xerrors.Errorf("failed to remove stale unix socket %s: %w", address, err)
		}
	}

	listener, err := net.Listen(scheme, address)
	if err != nil {
		return nil, xerrors.Errorf("failed to listen %s: %w", endpoint, err)
	}
	return listener, nil
}

// Start starts the service, it blocks until the gRPC server stops
func (svc *PoolService) Start() error {
	logger := log.WithFields(log.Fields{
		"package":  "service",
		"struct":   "PoolService",
		"function": "Start",
	})

	logger.Info("Starting the Mira Pool service")

	listener, err := listenServiceEndpoint(svc.config.ServiceEndpoint)
	if err != nil {
		logger.Error(err)
		return err
	}

	if svc.config.MediaServicePort > 0 {
		mediaListener, err := net.Listen("tcp", fmt.Sprintf(":%d", svc.config.MediaServicePort))
		if err != nil {
			listener.Close()
			logger.Error(err)
			return err
		}

		go func() {
			logger.Infof("Serving media on %s", mediaListener.Addr().String())
			err := svc.mediaServer.Serve(mediaListener)
			if err != nil {
				logger.WithError(err).Error("media server stopped")
			}
		}()
	}

	svc.poolServer.Start()

	go func() {
		ticker := time.NewTicker(statLogInterval)
		defer ticker.Stop()

		for {
			select {
			case <-svc.terminateChan:
				// terminate
				return
			case <-ticker.C:
				svc.poolServer.PrintStat()
			}
		}
	}()

	logger.Infof("Serving control API on %s", svc.config.ServiceEndpoint)
	err = svc.grpcServer.Serve(listener)
	if err != nil {
		logger.Error(err)
		return err
	}

	return nil
}

// Stop stops the service and releases resources
func (svc *PoolService) Stop() {
	logger := log.WithFields(log.Fields{
		"package":  "service",
		"struct":   "PoolService",
		"function": "Stop",
	})

	svc.mutex.Lock()
	defer svc.mutex.Unlock()

	if svc.terminated {
		// already terminated
		return
	}

	svc.terminated = true

	logger.Info("Stopping the Mira Pool service")
	close(svc.terminateChan)

	if svc.grpcServer != nil {
		svc.grpcServer.Stop()
	}

	if svc.mediaServer != nil {
		err := svc.mediaServer.Shutdown()
		if err != nil {
			logger.WithError(err).Warn("failed to shutdown media server")
		}
	}

	if svc.poolServer != nil {
		svc.poolServer.Release()
	}
}
