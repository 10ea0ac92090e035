// Command mirror is a daemon that walks one depot manifest, fetches every
// chunk of every regular file through the orchestrator, and republishes the
// decoded chunk bytes into an S3-compatible bucket keyed by the chunk's
// base64 id, alongside a status HTTP surface for operating the daemon.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	steamcdn "github.com/kenchrcum/steam-cdn-client"
	"github.com/kenchrcum/steam-cdn-client/internal/cdncrypto"
	"github.com/kenchrcum/steam-cdn-client/internal/config"
	"github.com/kenchrcum/steam-cdn-client/internal/controlplane"
	"github.com/kenchrcum/steam-cdn-client/internal/debug"
	"github.com/kenchrcum/steam-cdn-client/internal/metrics"
	"github.com/kenchrcum/steam-cdn-client/internal/middleware"
	"github.com/kenchrcum/steam-cdn-client/internal/s3"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

func chunkIDFor(sha []byte) string {
	return cdncrypto.EncodeBase64(sha)
}

func depotObjectKey(depotID uint32, chunkID string) string {
	return fmt.Sprintf("depot/%d/chunks/%s", depotID, chunkID)
}

func main() {
	var (
		controlPlaneURL = flag.String("control-plane-url", "https://api.steampowered.com", "base URL of the control plane")
		appID           = flag.Uint("app-id", 0, "application id")
		depotID         = flag.Uint("depot-id", 0, "depot id")
		manifestID      = flag.Uint64("manifest-id", 0, "manifest id")
		cellID          = flag.Uint("cell-id", 0, "Steam cell id used for edge server selection")
		provider        = flag.String("backend-provider", "minio", "S3-compatible backend provider name")
		region          = flag.String("backend-region", "us-east-1", "backend region")
		endpoint        = flag.String("backend-endpoint", "", "backend endpoint override")
		bucket          = flag.String("backend-bucket", "depot-mirror", "destination bucket")
		accessKey       = flag.String("backend-access-key", "", "backend access key")
		secretKey       = flag.String("backend-secret-key", "", "backend secret key")
		listenAddr      = flag.String("listen-addr", ":9090", "health/ready/metrics listen address")
		verbose         = flag.Bool("verbose", false, "enable debug logging")
	)
	flag.Parse()

	log := logrus.New()
	if *verbose {
		log.SetLevel(logrus.DebugLevel)
		debug.SetEnabled(true)
	}

	if err := s3.ValidateEndpoint(*endpoint); *endpoint != "" && err != nil {
		log.WithError(err).Fatal("invalid backend endpoint")
	}

	m := metrics.NewMetrics()
	metrics.SetVersion("dev")
	m.SetHardwareAccelerationStatus("aes", cdncrypto.HasAESHardwareSupport())
	m.StartSystemMetricsCollector()
	log.WithFields(logrus.Fields(cdncrypto.AccelerationInfo())).Info("chunk decrypt path")

	backendCfg := &config.BackendConfig{
		Provider:  *provider,
		Region:    *region,
		Endpoint:  *endpoint,
		Bucket:    *bucket,
		AccessKey: *accessKey,
		SecretKey: *secretKey,
	}

	backend, err := s3.NewClient(backendCfg)
	if err != nil {
		log.WithError(err).Fatal("constructing backend client")
	}

	cp := controlplane.NewHTTPControlPlane(*controlPlaneURL, controlplane.WithLogger(log))
	client := steamcdn.NewClient(cp, uint32(*cellID), steamcdn.WithLogger(log), steamcdn.WithMetrics(m))

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Warn("received shutdown signal")
		cancel()
	}()

	srv := newStatusServer(*listenAddr, m, log)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("status server stopped")
		}
	}()

	if *appID != 0 && *depotID != 0 && *manifestID != 0 {
		if err := mirrorOnce(ctx, log, client, backend, *bucket, uint32(*appID), uint32(*depotID), *manifestID); err != nil {
			log.WithError(err).Error("mirror run failed")
		}
	}

	<-ctx.Done()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)
}

func newStatusServer(addr string, m *metrics.Metrics, log *logrus.Logger) *http.Server {
	router := mux.NewRouter()
	router.Use(middleware.Recovery(log))
	router.Use(middleware.Logging(log))
	router.Handle("/health", metrics.HealthHandler())
	router.Handle("/ready", metrics.ReadinessHandler(nil))
	router.Handle("/live", metrics.LivenessHandler())
	router.Handle("/metrics", m.Handler())
	return &http.Server{Addr: addr, Handler: router}
}

func mirrorOnce(ctx context.Context, log *logrus.Logger, client *steamcdn.Client, backend s3.Client, bucket string, appID, depotID uint32, manifestID uint64) error {
	depotKey, err := client.DepotKey(ctx, appID, depotID)
	if err != nil {
		return err
	}
	requestCode, err := client.ManifestRequestCode(ctx, appID, depotID, manifestID)
	if err != nil {
		return err
	}
	manifest, err := client.Manifest(ctx, depotID, manifestID, &requestCode, depotKey)
	if err != nil {
		return err
	}

	var key [32]byte
	if depotKey != nil {
		key = *depotKey
	}

	for _, file := range manifest.AllFiles() {
		if file.IsDirectory() || file.IsSymlink() {
			continue
		}
		for _, chunk := range file.Chunks() {
			chunkID := chunkIDFor(chunk.SHA[:])
			decoded, err := client.Chunk(ctx, depotID, key, chunkID)
			if err != nil {
				log.WithError(err).WithField("chunk_id", chunkID).Warn("skipping chunk")
				continue
			}
			objectKey := depotObjectKey(depotID, chunkID)
			if err := backend.PutObject(ctx, bucket, objectKey, bytes.NewReader(decoded), nil); err != nil {
				log.WithError(err).WithField("object_key", objectKey).Warn("republish failed")
				continue
			}
		}
	}
	return nil
}
