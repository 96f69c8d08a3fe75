package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	promCounterForGRPCClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mira_pool_grpc_clients",
		Help: "The number of connected gRPC clients",
	})

	promCounterForGRPCRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mira_pool_grpc_requests_total",
		Help: "The total number of gRPC requests",
	})

	promCounterForGRPCResponses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mira_pool_grpc_responses_total",
		Help: "The total number of gRPC responses",
	})

	promCounterForGRPCErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mira_pool_grpc_errors_total",
		Help: "The total number of gRPC calls returning an error",
	})

	promCounterForGRPCRequestsTimedout = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mira_pool_grpc_requests_timedout_total",
		Help: "The total number of gRPC requests timed out",
	})

	promCounterForGRPCRequestsCanceled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mira_pool_grpc_requests_canceled_total",
		Help: "The total number of gRPC requests canceled",
	})

	promCounterForRemoteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mira_pool_remote_failures_total",
		Help: "The total number of manga API calls resolved to an empty result",
	})

	promCounterForMediaRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mira_pool_media_requests_total",
		Help: "The total number of media HTTP requests",
	})

	promCounterForMediaFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mira_pool_media_failures_total",
		Help: "The total number of media HTTP requests served with the failure placeholder",
	})
)
