// Package config binds a cobra command's flags to viper so every setting can
// also come from the environment or an optional config file.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// FileFlag names the persistent flag holding an optional config file path.
const FileFlag = "config"

// AddFileFlag registers --config on cmd.
func AddFileFlag(cmd *cobra.Command) {
	cmd.PersistentFlags().String(FileFlag, "", "optional config file (yaml, json or toml)")
}

// Bind returns a viper instance resolving each flag of cmd, in order of
// precedence, from the command line, the environment variable named after
// the flag ("redis-addr" -> REDIS_ADDR), the config file, and the flag default.
func Bind(cmd *cobra.Command) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, fmt.Errorf("bind flags: %w", err)
	}

	if f := cmd.Flags().Lookup(FileFlag); f != nil && f.Value.String() != "" {
		v.SetConfigFile(f.Value.String())
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", f.Value.String(), err)
		}
	}
	return v, nil
}

// SplitList splits a comma separated setting, dropping blanks.
func SplitList(s string) []string {
	out := []string{}
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
