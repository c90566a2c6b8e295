package main

import (
	"io"
	"os"

	"github.com/spf13/cobra"
)

type app struct {
	configPath string
	cfg        Config
}

func newRootCmd() *cobra.Command {
	a := &app{cfg: defaultConfig()}
	root := &cobra.Command{
		Use:   "newtdock",
		Short: "Newton docking protocol toolkit",
		Long: `newtdock speaks the desktop side of the Newton docking protocol.

It can inspect NSOF objects, link frames and docking command streams,
record and replay command traces, and dock with a device.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(a.configPath)
			if err != nil {
				return err
			}
			a.cfg = cfg
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "TOML config file")

	root.AddCommand(
		a.nsofCmd(),
		a.framesCmd(),
		a.commandsCmd(),
		a.traceCmd(),
		a.dockCmd(),
	)
	return root
}

// openInput opens path for reading; "-" is stdin.
func openInput(cmd *cobra.Command, path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(cmd.InOrStdin()), nil
	}
	return os.Open(path)
}
