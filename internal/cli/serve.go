package cli

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mesh-intelligence/sitesync/internal/server"
	"github.com/mesh-intelligence/sitesync/pkg/types"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the sync trigger over HTTP",
		Long: "Listen for POST /sync (optionally ?force=true) and report the run\n" +
			"mode in the X-Sync-Mode header. Also serves /healthz and /metrics.",
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from serve.addr, :8080)")
	return cmd
}

func runServe(cmd *cobra.Command, addr string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.log.Sync()

	if addr == "" {
		addr = a.v.GetString(cfgKeyServeAddr)
	}
	if errors.Is(a.cfg.Airtable.Validate(), types.ErrMissingCredentials) {
		a.log.Warn("Airtable credentials missing; sync requests will fail until they are set")
	}

	h, err := newHandler(a)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(cmd.Context())
	g.Go(func() error {
		a.log.Info("listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.log.Info("shutting down")
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}

// newHandler builds the HTTP handler with a fresh registry. Each request
// constructs its own syncer so configuration errors surface per request.
func newHandler(a *app) (*server.Handler, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := func() (server.Runner, io.Closer, error) {
		s, st, err := a.newSyncer()
		if err != nil {
			return nil, nil, err
		}
		return s, st, nil
	}
	return server.New(factory, a.log.Named("http"), reg)
}
