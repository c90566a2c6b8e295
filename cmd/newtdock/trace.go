package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/danmuck/newtdock/internal/protocol/dock"
	"github.com/danmuck/newtdock/internal/trace"
	"github.com/segmentio/ksuid"
	"github.com/spf13/cobra"
)

func (a *app) traceCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Record, list and replay command traces",
	}
	cmd.PersistentFlags().StringVar(&dir, "dir", "", "trace database directory (overrides trace_dir)")

	open := func() (*trace.Store, error) {
		path := dir
		if path == "" {
			path = a.cfg.TraceDir
		}
		if path == "" {
			return nil, errors.New("no trace directory: set --dir or trace_dir")
		}
		return trace.Open(path)
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "import <file>",
		Short: "Store a docking command stream as a new trace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := openInput(cmd, args[0])
			if err != nil {
				return err
			}
			defer in.Close()

			store, err := open()
			if err != nil {
				return err
			}
			defer store.Close()

			id, err := store.NewTrace()
			if err != nil {
				return err
			}
			factory := commandFactory(true)
			br := bufio.NewReader(in)
			n := 0
			for {
				c, wire, err := factory.DecodeWire(br)
				if errors.Is(err, io.EOF) {
					break
				}
				if err != nil {
					return fmt.Errorf("command %d: %w", n, err)
				}
				if _, err := store.Append(id, c.Direction(), wire); err != nil {
					return err
				}
				n++
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d commands\n", id, n)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List stored traces",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := open()
			if err != nil {
				return err
			}
			defer store.Close()

			ids, err := store.Traces()
			if err != nil {
				return err
			}
			for _, id := range ids {
				n, err := store.Count(id)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %d commands\n", id, id.Time().UTC().Format("2006-01-02T15:04:05Z"), n)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "dump <trace-id>",
		Short: "Replay a stored trace and print its commands",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := ksuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("parse trace id: %w", err)
			}
			store, err := open()
			if err != nil {
				return err
			}
			defer store.Close()

			replayed, err := trace.Replay(store, id, commandFactory(true))
			for _, r := range replayed {
				arrow := "<-"
				if r.Direction == dock.ToDevice {
					arrow = "->"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%4d %s ", r.Seq, arrow)
				printCommand(cmd.OutOrStdout(), r.Command)
			}
			return err
		},
	})
	return cmd
}
