package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/nfsquorum/nfs4state"
	"github.com/nfsquorum/nfs4state/auth"
	"github.com/nfsquorum/nfs4state/logger"
	"github.com/kuleuven/vfs"
	"github.com/kuleuven/vfs/fs/nativefs"
	"github.com/kuleuven/vfs/fs/rootfs"
	"github.com/kuleuven/vfs/runas"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()

	if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(lvl)
	}

	srv, err := nfs4state.Listen(cfg.Listen, rootLoader(cfg.Root))
	if err != nil {
		return err
	}

	srv.SetOpenConfig(nfs4state.OpenConfig{
		UseOpenConfirm: cfg.OpenUseConfirm,
		WithMode0Check: cfg.OpenMode0Check,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.MetricsListen != "" {
		go serveMetrics(ctx, cfg.MetricsListen)
	}

	logger.Logger.Infof("serving NFSv4 on %s, exporting %s at %s", cfg.Listen, cfg.Root, cfg.Listen)

	return srv.Serve(ctx)
}

// rootLoader returns a RootLoader that exports root as the filesystem for
// every connecting client, running filesystem operations as that client's
// uid/gid via runas, mirroring the teacher's own example loader.
func rootLoader(root string) nfs4state.RootLoader {
	return func(ctx context.Context, conn net.Conn, creds *auth.Creds) (vfs.AdvancedLinkFS, error) {
		fs := rootfs.New(ctx)

		runasContext, err := runas.RunAs(&runas.User{
			UID:    creds.UID,
			GID:    creds.GID,
			Groups: creds.AdditionalGroups,
		})
		if err != nil {
			return nil, err
		}

		err = fs.Mount("/", &nativefs.NativeServerInodeFS{
			NativeFS: &nativefs.NativeFS{
				Root:    root,
				Context: runasContext,
			},
		}, 0)

		return fs, err
	}
}

func serveMetrics(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()

		server.Close() //nolint:errcheck
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Logger.Errorf("metrics server failed: %v", err)
	}
}
