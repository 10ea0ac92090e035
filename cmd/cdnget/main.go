// Command cdnget downloads a single file out of one depot manifest, the
// same call sequence a minimal content-distribution client walks through:
// depot key, manifest request code, manifest, then the named file's chunks.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	steamcdn "github.com/kenchrcum/steam-cdn-client"
	"github.com/kenchrcum/steam-cdn-client/internal/controlplane"
	"github.com/kenchrcum/steam-cdn-client/internal/debug"
	"github.com/sirupsen/logrus"
)

func main() {
	var (
		controlPlaneURL = flag.String("control-plane-url", "https://api.steampowered.com", "base URL of the control plane")
		appID           = flag.Uint("app-id", 730, "application id")
		depotID         = flag.Uint("depot-id", 2347771, "depot id")
		manifestID      = flag.Uint64("manifest-id", 9071851182114336641, "manifest id")
		fileName        = flag.String("file", "client.dll", "file within the manifest to download")
		outputPath      = flag.String("output", "", "output path; defaults to the file's own name")
		cellID          = flag.Uint("cell-id", 0, "Steam cell id used for edge server selection")
		verbose         = flag.Bool("verbose", false, "enable debug logging")
	)
	flag.Parse()

	log := logrus.New()
	if *verbose {
		log.SetLevel(logrus.DebugLevel)
		debug.SetEnabled(true)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Warn("received shutdown signal, cancelling")
		cancel()
	}()

	if err := run(ctx, log, *controlPlaneURL, uint32(*appID), uint32(*depotID), *manifestID, *fileName, *outputPath, uint32(*cellID)); err != nil {
		log.WithError(err).Fatal("download failed")
	}
}

func run(ctx context.Context, log *logrus.Logger, controlPlaneURL string, appID, depotID uint32, manifestID uint64, fileName, outputPath string, cellID uint32) error {
	cp := controlplane.NewHTTPControlPlane(controlPlaneURL, controlplane.WithLogger(log))
	client := steamcdn.NewClient(cp, cellID, steamcdn.WithLogger(log))

	start := time.Now()

	depotKey, err := client.DepotKey(ctx, appID, depotID)
	if err != nil {
		return err
	}
	log.WithField("has_key", depotKey != nil).Info("fetched depot key")

	requestCode, err := client.ManifestRequestCode(ctx, appID, depotID, manifestID)
	if err != nil {
		return err
	}

	manifest, err := client.Manifest(ctx, depotID, manifestID, &requestCode, depotKey)
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"depot_id":    manifest.DepotID(),
		"manifest_id": manifest.GID(),
		"file_count":  len(manifest.AllFiles()),
	}).Info("fetched manifest")

	file, ok := manifest.File(fileName)
	if !ok {
		log.WithField("file", fileName).Fatal("file not present in manifest")
	}

	if outputPath == "" {
		outputPath = fileName
	}
	out, err := os.OpenFile(outputPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer out.Close()

	if depotKey == nil {
		log.Warn("depot is unencrypted but manifest file download still requires a key slot; using zero key")
	}
	var key [32]byte
	if depotKey != nil {
		key = *depotKey
	}

	if err := file.Download(ctx, key, nil, out); err != nil {
		return err
	}

	log.WithFields(logrus.Fields{
		"file":     fileName,
		"bytes":    file.Size(),
		"duration": time.Since(start),
	}).Info("download complete")
	return nil
}
