package restservice

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	log "github.com/sirupsen/logrus"
	"github.com/zyfty/zyftyd/internal/config"
	interfaces "github.com/zyfty/zyftyd/internal/interface"
	"github.com/zyfty/zyftyd/internal/telemetry"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/otel"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpchealth "google.golang.org/grpc/health/grpc_health_v1"
)

const shutdownTimeout = 5 * time.Second

type Config struct {
	Port uint32
}

func (c Config) address() string {
	return fmt.Sprintf(":%d", c.Port)
}

type service struct {
	version      string
	config       Config
	appConfig    *config.Config
	server       *http.Server
	grpcServer   *grpc.Server
	health       *health.Server
	otelShutdown func(context.Context) error
}

func NewService(
	version string, svcConfig Config, appConfig *config.Config,
) (interfaces.Service, error) {
	if err := appConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid app config: %s", err)
	}
	return &service{version: version, config: svcConfig, appConfig: appConfig}, nil
}

func (s *service) Start() error {
	ctx := context.Background()

	if s.appConfig.OtelCollectorEndpoint != "" {
		pushInterval := time.Duration(s.appConfig.OtelPushInterval) * time.Second
		otelShutdown, err := telemetry.InitOtelSDK(
			ctx, s.appConfig.OtelCollectorEndpoint, pushInterval,
		)
		if err != nil {
			return err
		}
		s.otelShutdown = otelShutdown
		log.Debugf("pushing metrics to %s", s.appConfig.OtelCollectorEndpoint)
	}

	liens, err := s.appConfig.LienService()
	if err != nil {
		return err
	}
	registry, err := s.appConfig.RegistryService()
	if err != nil {
		return err
	}
	escrow, err := s.appConfig.EscrowService()
	if err != nil {
		return err
	}
	ledger, err := s.appConfig.LedgerService()
	if err != nil {
		return err
	}

	s.grpcServer = grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler(
			otelgrpc.WithTracerProvider(otel.GetTracerProvider()),
			otelgrpc.WithMeterProvider(otel.GetMeterProvider()),
		)),
		grpc.ChainUnaryInterceptor(unaryPanicRecoveryInterceptor(), unaryLogger),
	)
	s.health = health.NewServer()
	grpchealth.RegisterHealthServer(s.grpcServer, s.health)

	gateway, err := newGateway(newHandler(liens, registry, escrow, ledger), s.health)
	if err != nil {
		return err
	}

	listener, err := net.Listen("tcp", s.config.address())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.address(), err)
	}

	s.server = &http.Server{
		Handler:           h2c.NewHandler(router(s.grpcServer, gateway), &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server stopped unexpectedly")
		}
	}()

	s.health.SetServingStatus("", grpchealth.HealthCheckResponse_SERVING)
	log.Infof("zyftyd %s listening on %s", s.version, listener.Addr())
	return nil
}

func (s *service) Stop() {
	if s.health != nil {
		s.health.Shutdown()
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			log.WithError(err).Warn("failed to shutdown http server")
		}
	}
	if s.grpcServer != nil {
		s.grpcServer.Stop()
	}
	log.Debug("stopped server")

	s.appConfig.Close()
	log.Debug("closed app services")

	if s.otelShutdown != nil {
		if err := s.otelShutdown(ctx); err != nil {
			log.WithError(err).Warn("failed to shutdown otel sdk")
		}
	}
}

func newGateway(h *handler, healthServer *health.Server) (http.Handler, error) {
	mux := runtime.NewServeMux()
	if err := h.register(mux); err != nil {
		return nil, err
	}
	if err := mux.HandlePath(http.MethodGet, "/healthz", healthz(healthServer)); err != nil {
		return nil, err
	}
	return withLogger(withPanicRecovery(mux)), nil
}

func healthz(healthServer *health.Server) runtime.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, _ map[string]string) {
		res, err := healthServer.Check(r.Context(), &grpchealth.HealthCheckRequest{})
		if err != nil || res.GetStatus() != grpchealth.HealthCheckResponse_SERVING {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": grpchealth.HealthCheckResponse_NOT_SERVING.String(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": res.GetStatus().String()})
	}
}

// router sends gRPC traffic to the grpc server and everything else to the rest gateway.
func router(grpcServer *grpc.Server, gateway http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isOptionRequest(r) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Headers", "*")
			w.Header().Add("Access-Control-Allow-Methods", "POST, GET, DELETE, OPTIONS")
			return
		}

		if isGrpcRequest(r) {
			grpcServer.ServeHTTP(w, r)
			return
		}

		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "*")
		w.Header().Add("Access-Control-Allow-Methods", "POST, GET, DELETE, OPTIONS")
		gateway.ServeHTTP(w, r)
	})
}

func isOptionRequest(req *http.Request) bool {
	return req.Method == http.MethodOptions
}

func isGrpcRequest(req *http.Request) bool {
	return req.ProtoMajor == 2 &&
		strings.HasPrefix(req.Header.Get("Content-Type"), "application/grpc")
}
