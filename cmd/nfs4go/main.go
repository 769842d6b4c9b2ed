package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		logrus.Fatal(err)
	}

	os.Exit(0)
}

var rootCmd = &cobra.Command{
	Use:   "nfs4go",
	Short: "Serve a directory tree over NFSv4",
	RunE:  runServe,
}

func init() {
	rootCmd.Flags().String("listen", ":2050", "address to listen for NFSv4 connections on")
	rootCmd.Flags().String("root", "/srv", "directory served as the NFS export root")
	rootCmd.Flags().String("log-level", "info", "log level: trace, debug, info, warn, error")
	rootCmd.Flags().String("metrics-listen", ":9105", "address to serve Prometheus metrics on, empty to disable")
	rootCmd.Flags().Bool("open-use-confirm", true, "require OPEN_CONFIRM for unconfirmed open-owners (NFSv4.0 clients)")
	rootCmd.Flags().Bool("open-mode0-check", false, "reject OPEN of an existing file whose mode is 0000")

	bindFlags(rootCmd)
}
