// velcrod is a standalone gRPC server exposing the event bus and
// reflection document store over the network.
//
// Usage:
//
//	go run ./cmd/velcrod                         # Default :50051
//	go run ./cmd/velcrod -addr :8080             # Custom port
//	go run ./cmd/velcrod -config velcro.yaml      # Load tuning from YAML
//	go build -o velcrod ./cmd/velcrod && ./velcrod
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jeeves-cluster-organization/velcro-core/allocator"
	"github.com/jeeves-cluster-organization/velcro-core/config"
	"github.com/jeeves-cluster-organization/velcro-core/eventbus"
	"github.com/jeeves-cluster-organization/velcro-core/moduleregistry"
	"github.com/jeeves-cluster-organization/velcro-core/observability"
	grpcserver "github.com/jeeves-cluster-organization/velcro-core/rpcserver"
	"github.com/jeeves-cluster-organization/velcro-core/serialize"
)

// stdLogger implements grpcserver.Logger using the standard library log
// package.
type stdLogger struct{}

func (l *stdLogger) Debug(msg string, keysAndValues ...any) {
	log.Printf("[DEBUG] %s %v", msg, keysAndValues)
}

func (l *stdLogger) Info(msg string, keysAndValues ...any) {
	log.Printf("[INFO] %s %v", msg, keysAndValues)
}

func (l *stdLogger) Warn(msg string, keysAndValues ...any) {
	log.Printf("[WARN] %s %v", msg, keysAndValues)
}

func (l *stdLogger) Error(msg string, keysAndValues ...any) {
	log.Printf("[ERROR] %s %v", msg, keysAndValues)
}

func main() {
	addr := flag.String("addr", ":50051", "gRPC server address")
	configPath := flag.String("config", "", "path to a velcro.yaml tuning file (optional)")
	otlpEndpoint := flag.String("otlp-endpoint", "", "OTLP gRPC collector endpoint (tracing disabled if empty)")
	flag.Parse()

	logger := &stdLogger{}
	logger.Info("velcrod_starting", "version", "1.0.0", "address", *addr)

	cfg := config.DefaultCoreConfig()
	if *configPath != "" {
		loaded, err := config.LoadCoreConfigYAML(*configPath)
		if err != nil {
			log.Fatalf("loading config: %v", err)
		}
		cfg = loaded
	}
	config.SetCoreConfig(cfg)
	logger.Info("config_loaded", "arena_size_bytes", cfg.ArenaSizeBytes, "lockless_dispatch", cfg.LocklessDispatch)

	if *otlpEndpoint != "" {
		shutdown, err := observability.InitTracer("velcro-core", *otlpEndpoint)
		if err != nil {
			logger.Warn("tracing_disabled", "error", err.Error())
		} else {
			defer shutdown(context.Background())
		}
	}

	root := allocator.EnvironmentSingleton()
	logger.Info("allocator_ready", "capacity", root.Capacity())

	registry := moduleregistry.New("velcrod")
	defer registry.Close()

	serializeCtx := serialize.NewContext()
	registry.RegisterContext(serializeCtx)

	traits := eventbus.DefaultTraits()
	traits.LocklessDispatch = cfg.LocklessDispatch
	traits.EnableQueuedEvents = cfg.EnableEventQueue
	bus := eventbus.NewContext[string](traits)
	logger.Info("event_bus_ready")

	busService := grpcserver.NewEventBusService(bus, logger)
	docService := grpcserver.NewDocumentService(serializeCtx, logger)
	server := grpcserver.NewServer(logger, busService, docService)
	logger.Info("grpc_server_configured", "services", []string{"EventBusService", "DocumentService"})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	runningServer, err := grpcserver.StartBackground(*addr, server)
	if err != nil {
		log.Fatalf("failed to start server: %v", err)
	}

	logger.Info("velcrod_ready", "address", *addr)
	fmt.Printf("\nvelcrod running on %s\n", *addr)
	fmt.Println("Press Ctrl+C to stop")

	sig := <-sigCh
	logger.Info("shutdown_signal_received", "signal", sig.String())

	runningServer.GracefulStop()
	logger.Info("velcrod_stopped")
}
