// Package config loads the Process Supervisor's startup options (spec
// §6 "Process interface") and layers environment-variable overrides on
// top the way the teacher's am package layers env vars over file
// defaults with viper.
package config

import (
	"encoding/json"
	"strings"

	"github.com/spf13/viper"

	"github.com/chrispahm/gdx-viewer/internal/errs"
)

// Options is the JSON blob passed as the options argument described in
// spec §6: {allowRemoteSourceLoading, globalStoragePath}.
type Options struct {
	AllowRemoteSourceLoading bool   `json:"allowRemoteSourceLoading"`
	GlobalStoragePath        string `json:"globalStoragePath"`
}

// envPrefix namespaces environment overrides, e.g. GDXVIEWER_ALLOW_REMOTE_SOURCE_LOADING.
const envPrefix = "GDXVIEWER"

// ParseOptions decodes the options JSON argument and applies
// environment-variable overrides on top of it. Unlike the teacher's
// am.Load, there is no on-disk config file in this system — the sole
// file-shaped input is the options JSON the supervisor receives on
// argv; env vars exist only to let operators force a setting without
// editing the caller that spawns the process.
func ParseOptions(optionsJSON string) (*Options, error) {
	var opts Options
	if strings.TrimSpace(optionsJSON) != "" {
		if err := json.Unmarshal([]byte(optionsJSON), &opts); err != nil {
			return nil, errs.Wrapf(err, "failed to parse startup options JSON")
		}
	}

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetDefault("allow_remote_source_loading", opts.AllowRemoteSourceLoading)
	v.SetDefault("global_storage_path", opts.GlobalStoragePath)

	opts.AllowRemoteSourceLoading = v.GetBool("allow_remote_source_loading")
	opts.GlobalStoragePath = v.GetString("global_storage_path")

	return &opts, nil
}
