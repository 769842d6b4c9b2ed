package main

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// bindFlags wires every flag on cmd into viper under the same key, and lets
// NFS4GO_-prefixed environment variables override them, matching the
// config-loading pattern used throughout the retrieval pack's cobra+viper
// server binaries.
func bindFlags(cmd *cobra.Command) {
	viper.SetEnvPrefix("nfs4go")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		panic(err)
	}
}

// Config is the resolved set of startup options, sourced from flags,
// environment variables and (if present) a config file loaded by the
// caller via viper.SetConfigFile/ReadInConfig.
type Config struct {
	Listen         string
	Root           string
	LogLevel       string
	MetricsListen  string
	OpenUseConfirm bool
	OpenMode0Check bool
}

func loadConfig() Config {
	return Config{
		Listen:         viper.GetString("listen"),
		Root:           viper.GetString("root"),
		LogLevel:       viper.GetString("log-level"),
		MetricsListen:  viper.GetString("metrics-listen"),
		OpenUseConfirm: viper.GetBool("open-use-confirm"),
		OpenMode0Check: viper.GetBool("open-mode0-check"),
	}
}
