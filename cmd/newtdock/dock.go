package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danmuck/newtdock/internal/observability"
	"github.com/danmuck/newtdock/internal/protocol/dock"
	"github.com/danmuck/newtdock/internal/protocol/frame"
	"github.com/danmuck/newtdock/internal/protocol/session"
	"github.com/danmuck/newtdock/internal/trace"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func (a *app) dockCmd() *cobra.Command {
	var metricsAddr string
	var record bool
	cmd := &cobra.Command{
		Use:   "dock <device>",
		Short: "Dock with a Newton and list its stores",
		Long: `Open a device (or any read-write file) carrying the docking stream,
run the handshake, list the device's stores and disconnect.

Example:
  newtdock dock /dev/ttyUSB0 --record --metrics-addr 127.0.0.1:7070`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg
			if metricsAddr != "" {
				cfg.MetricsAddr = metricsAddr
			}

			dev, err := os.OpenFile(args[0], os.O_RDWR, 0)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				dev.Close()
			}()
			defer dev.Close()

			var rw io.ReadWriter = dev
			if cfg.Framed {
				rw = frame.NewStream(dev, frame.Limits{MaxPayloadBytes: cfg.MaxFrameBytes})
			}

			var rec *trace.Recorder
			if record {
				if cfg.TraceDir == "" {
					return errors.New("--record needs trace_dir in the config")
				}
				store, err := trace.Open(cfg.TraceDir)
				if err != nil {
					return err
				}
				defer store.Close()
				id, err := store.NewTrace()
				if err != nil {
					return err
				}
				rec = trace.NewRecorder(store, id)
				fmt.Fprintf(cmd.OutOrStdout(), "recording trace %s\n", id)
			}
			return runDock(ctx, rw, cfg, rec, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve /metrics and /status on this address")
	cmd.Flags().BoolVar(&record, "record", false, "record the session to the trace database")
	return cmd
}

// runDock negotiates a session over rw, prints the device's stores and
// disconnects.
func runDock(ctx context.Context, rw io.ReadWriter, cfg Config, rec *trace.Recorder, out io.Writer) error {
	conn := dock.NewConn(rw, nil)
	if rec != nil {
		conn.AddListener(rec)
	}
	sess, err := session.New(conn, cfg.Session)
	if err != nil {
		return err
	}

	if cfg.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           observability.NewStatusRouter(observability.ComponentLogger("status"), func() any { return statusOf(sess) }),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Msgf("newtdock.dock metrics server failed addr=%s err=%v", cfg.MetricsAddr, err)
			}
		}()
		defer srv.Close()
	}

	if err := sess.Negotiate(ctx); err != nil {
		return fmt.Errorf("negotiate: %w", err)
	}
	hs := sess.Handshake()
	if dev, ok := hs.Device(); ok {
		fmt.Fprintf(out, "docked with %q (newton id %08x, protocol %d, %s session)\n",
			dev.Owner, dev.Info.NewtonID, hs.ProtocolVersion(), hs.Kind())
	}

	stores, err := sess.StoreNames(ctx)
	if err != nil {
		return fmt.Errorf("store names: %w", err)
	}
	for _, s := range stores {
		name, _ := s.Text("name")
		fmt.Fprintf(out, "store %q\n", name)
	}

	if err := sess.Disconnect(); err != nil {
		return err
	}
	if rec != nil {
		return rec.Err()
	}
	return nil
}

type dockStatus struct {
	State       string   `json:"state"`
	Kind        string   `json:"kind"`
	Device      string   `json:"device,omitempty"`
	Outstanding []string `json:"outstanding"`
}

func statusOf(s *session.Session) dockStatus {
	hs := s.Handshake()
	st := dockStatus{State: hs.State().String(), Kind: hs.Kind().String(), Outstanding: []string{}}
	if dev, ok := hs.Device(); ok {
		st.Device = dev.Owner
	}
	for _, p := range s.Outstanding().List() {
		st.Outstanding = append(st.Outstanding, p.Key+":"+p.Command)
	}
	return st
}
