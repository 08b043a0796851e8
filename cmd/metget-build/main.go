// Command metget-build is the queue worker that assembles meteorological
// forcing products from the archive and uploads them for delivery.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/waterinstitute/metget/internal/build"
	"github.com/waterinstitute/metget/internal/catalog"
	"github.com/waterinstitute/metget/internal/config"
	"github.com/waterinstitute/metget/internal/database"
	"github.com/waterinstitute/metget/internal/log"
	"github.com/waterinstitute/metget/internal/objectstore"
	"github.com/waterinstitute/metget/internal/status"
	"github.com/waterinstitute/metget/internal/version"
)

func main() {
	debug := flag.Bool("debug", false, "Turn on debugging output")
	showVersion := flag.Bool("version", false, "Print the version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Version)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("configuration error: %v\n", err)
		os.Exit(1)
	}

	if err := log.Init(*debug || cfg.Debug); err != nil {
		fmt.Printf("can't initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	log.Infof("metget-build %s starting", version.Version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sigs
		log.Infof("received %s, shutting down", s)
		cancel()
	}()

	client := database.NewClient(cfg, log.GetSugaredLogger())
	if err := client.Connect(); err != nil {
		log.Fatalf("connecting to database: %v", err)
	}
	if err := client.Migrate(); err != nil {
		log.Fatalf("migrating database: %v", err)
	}

	store, err := objectstore.NewStore(ctx, cfg.Bucket, cfg.AWSRegion,
		cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey)
	if err != nil {
		log.Fatalf("opening archive bucket: %v", err)
	}
	upload, err := objectstore.NewStore(ctx, cfg.UploadBucket, cfg.AWSRegion,
		cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey)
	if err != nil {
		log.Fatalf("opening upload bucket: %v", err)
	}

	catalogStore := catalog.NewStore(client.DB)
	requests := database.NewRequestStore(client.DB)
	handler := build.NewHandler(catalogStore, store, upload)
	daemon := build.NewDaemon(requests, handler, cfg.ConnInfo())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return daemon.Run(gctx) })
	if cfg.StatusAddr != "" {
		srv := status.NewServer(cfg.StatusAddr, client, requests)
		g.Go(func() error { return srv.Run(gctx) })
	}

	if err := g.Wait(); err != nil && err != context.Canceled {
		log.Fatalf("daemon exited: %v", err)
	}
	log.Info("metget-build stopped")
}
