package main

import (
	"bufio"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/danmuck/newtdock/internal/compander"
	"github.com/danmuck/newtdock/internal/protocol/dock"
	"github.com/danmuck/newtdock/internal/protocol/frame"
	"github.com/danmuck/newtdock/internal/protocol/nsof"
	"github.com/spf13/cobra"
)

func (a *app) nsofCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "nsof",
		Short: "Inspect NSOF objects",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "dump <file>",
		Short: "Print a flattened NSOF object",
		Long: `Print a flattened NSOF object as NewtonScript-like text.

The input may start with the stream version byte or directly with an
object tag.

Example:
  newtdock nsof dump entry.nsof`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := openInput(cmd, args[0])
			if err != nil {
				return err
			}
			defer in.Close()

			o, err := readObject(in, args[0])
			if err != nil {
				return err
			}
			return nsof.Dump(cmd.OutOrStdout(), o)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "binaries <file>",
		Short: "List the large binaries in an NSOF object",
		Long: `List every large binary reachable from an NSOF object with its
stored and expanded sizes. Compressed data is expanded with the registered
compander.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := openInput(cmd, args[0])
			if err != nil {
				return err
			}
			defer in.Close()

			o, err := readObject(in, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			reg := compander.DefaultRegistry()
			for i, lb := range largeBinaries(o) {
				fmt.Fprintf(out, "%4d  %s  stored=%d", i, nsof.Sprint(lb.Class), len(lb.Data))
				if lb.Compressed {
					fmt.Fprintf(out, "  compander=%q", lb.Compander)
				}
				r, err := reg.Open(lb)
				if err != nil {
					fmt.Fprintf(out, "  error: %v\n", err)
					continue
				}
				n, err := io.Copy(io.Discard, r)
				if err != nil {
					fmt.Fprintf(out, "  error: %v\n", err)
					continue
				}
				fmt.Fprintf(out, "  expanded=%d\n", n)
			}
			return nil
		},
	})
	return cmd
}

// readObject accepts a stream with or without the leading version byte.
func readObject(in io.Reader, name string) (nsof.Object, error) {
	br := bufio.NewReader(in)
	first, err := br.Peek(1)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	if first[0] == nsof.Version {
		return nsof.Unflatten(br)
	}
	return nsof.NewDecoder(br).Decode()
}

func largeBinaries(root nsof.Object) []*nsof.LargeBinary {
	var out []*nsof.LargeBinary
	seen := make(map[nsof.Object]bool)
	var walk func(o nsof.Object)
	walk = func(o nsof.Object) {
		switch v := o.(type) {
		case *nsof.LargeBinary:
			if v == nil || seen[v] {
				return
			}
			seen[v] = true
			out = append(out, v)
		case *nsof.Array:
			if v == nil || seen[v] {
				return
			}
			seen[v] = true
			for _, item := range v.Items {
				walk(item)
			}
		case *nsof.PlainArray:
			if v == nil || seen[v] {
				return
			}
			seen[v] = true
			for _, item := range v.Items {
				walk(item)
			}
		case *nsof.Frame:
			if v == nil || seen[v] {
				return
			}
			seen[v] = true
			for _, s := range v.Slots() {
				walk(s.Value)
			}
		}
	}
	walk(root)
	return out
}

func (a *app) framesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "frames <file>",
		Short: "List link frames in a captured byte stream",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := openInput(cmd, args[0])
			if err != nil {
				return err
			}
			defer in.Close()

			out := cmd.OutOrStdout()
			r := frame.NewReader(in, frame.Limits{MaxPayloadBytes: a.cfg.MaxFrameBytes})
			for i := 0; ; i++ {
				payload, err := r.Receive()
				if errors.Is(err, io.EOF) {
					return nil
				}
				var ce *frame.ChecksumError
				if errors.As(err, &ce) {
					fmt.Fprintf(out, "%4d  checksum error: expected %04x got %04x\n", i, ce.Expected, ce.Got)
					continue
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%4d  %5d bytes  %s\n", i, len(payload), preview(payload))
			}
		},
	}
}

func (a *app) commandsCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "commands <file>",
		Short: "Decode a docking command stream",
		Long: `Decode a docking command stream and print each command.

Desktop-to-device payloads are skipped unless --all is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := openInput(cmd, args[0])
			if err != nil {
				return err
			}
			defer in.Close()

			cmds, err := commandFactory(all).DecodeAll(bufio.NewReader(in))
			for _, c := range cmds {
				printCommand(cmd.OutOrStdout(), c)
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "decode desktop-to-device payloads too")
	return cmd
}

func commandFactory(all bool) *dock.Factory {
	if all {
		return dock.NewFactory(nil, dock.WithOutboundPayloads())
	}
	return dock.NewFactory(nil)
}

func printCommand(w io.Writer, c dock.Command) {
	fmt.Fprintf(w, "%s  %-11s  %6d", c.Name(), c.Direction(), c.Length())
	switch v := c.(type) {
	case interface{ ErrorCode() int32 }:
		fmt.Fprintf(w, "  code=%d", v.ErrorCode())
	case *dock.NewtonName:
		fmt.Fprintf(w, "  name=%q newton_id=%08x", v.Owner, v.Info.NewtonID)
	case *dock.Raw:
		fmt.Fprintf(w, "  %s", preview(v.Data))
	}
	fmt.Fprintln(w)
	if o := objectPayload(c); o != nil {
		fmt.Fprintf(w, "      %s\n", nsof.Sprint(o))
	}
}

func objectPayload(c dock.Command) nsof.Object {
	switch v := c.(type) {
	case *dock.Entry:
		return v.Value
	case *dock.StoreNames:
		return v.Value
	case *dock.SoupNames:
		return v.Value
	case *dock.SetCurrentStore:
		return v.Value
	case *dock.SetCurrentSoup:
		return v.Value
	}
	return nil
}

func preview(b []byte) string {
	const limit = 16
	if len(b) <= limit {
		return hex.EncodeToString(b)
	}
	return hex.EncodeToString(b[:limit]) + "..."
}
