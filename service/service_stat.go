package service

import (
	"context"

	"github.com/mirareader/mira-pool/service/api"
	"github.com/mirareader/mira-pool/utils"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/stats"
	"google.golang.org/grpc/status"
)

// PoolServiceStatHandler counts connected clients and wraps unary calls
type PoolServiceStatHandler struct {
	poolServer *PoolServer
}

// NewPoolServiceStatHandler creates a new PoolServiceStatHandler
func NewPoolServiceStatHandler(poolServer *PoolServer) *PoolServiceStatHandler {
	return &PoolServiceStatHandler{
		poolServer: poolServer,
	}
}

func (handler *PoolServiceStatHandler) TagRPC(ctx context.Context, _ *stats.RPCTagInfo) context.Context {
	return ctx
}

// HandleRPC processes the RPC stats.
func (handler *PoolServiceStatHandler) HandleRPC(context.Context, stats.RPCStats) {
}

func (handler *PoolServiceStatHandler) TagConn(ctx context.Context, _ *stats.ConnTagInfo) context.Context {
	return ctx
}

// HandleConn processes the Conn stats.
func (handler *PoolServiceStatHandler) HandleConn(c context.Context, s stats.ConnStats) {
	logger := log.WithFields(log.Fields{
		"package":  "service",
		"struct":   "PoolServiceStatHandler",
		"function": "HandleConn",
	})

	defer utils.StackTraceFromPanic(logger)

	switch s.(type) {
	case *stats.ConnEnd:
		live := handler.poolServer.clientDisconnected()
		promCounterForGRPCClients.Dec()

		logger.Infof("Client is disconnected - total %d live connections", live)
		handler.poolServer.PrintStat()

	case *stats.ConnBegin:
		live := handler.poolServer.clientConnected()
		promCounterForGRPCClients.Inc()

		logger.Infof("Client is connected - total %d connections", live)
		handler.poolServer.PrintStat()
	}
}

func getClientID(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}

	values := md.Get(api.ClientIDMetadataKey)
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// UnaryInterceptor counts calls, touches the caller's session and turns handler panics into Internal errors
func (handler *PoolServiceStatHandler) UnaryInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, uhandler grpc.UnaryHandler) (interface{}, error) {
	logger := log.WithFields(log.Fields{
		"package":  "service",
		"struct":   "PoolServiceStatHandler",
		"function": "UnaryInterceptor",
	})

	// request
	promCounterForGRPCRequests.Inc()
	handler.poolServer.sessions.Touch(getClientID(ctx))

	respChan := make(chan interface{}, 1)
	errChan := make(chan error, 1)

	go func() {
		var err error
		var resp interface{}

		defer func() {
			if err != nil {
				errChan <- err
			} else {
				respChan <- resp
			}
		}()

		defer utils.RecoverToError(logger, &err)

		resp, err = uhandler(ctx, req)
	}()

	select {
	case <-ctx.Done():
		err := ctx.Err()
		if err == context.DeadlineExceeded {
			logger.Errorf("Handler %q did not return within timeout", info.FullMethod)
			promCounterForGRPCRequestsTimedout.Inc()
			return nil, status.Error(codes.DeadlineExceeded, "RPC timed out")
		}

		logger.Errorf("Handler %q canceled", info.FullMethod)
		promCounterForGRPCRequestsCanceled.Inc()
		return nil, status.Error(codes.Canceled, "RPC canceled")
	case err := <-errChan:
		// response
		promCounterForGRPCResponses.Inc()
		promCounterForGRPCErrors.Inc()
		if _, ok := status.FromError(err); !ok {
			err = status.Error(codes.Internal, err.Error())
		}
		return nil, err
	case resp := <-respChan:
		// response
		promCounterForGRPCResponses.Inc()
		return resp, nil
	}
}
