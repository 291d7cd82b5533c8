package common

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const EnvPrefix = "TCPUTILS"

// Loads a configuration file (yaml, toml or json, inferred from the
// extension).  Environment variables of the form TCPUTILS_<KEY> override
// any key that appears in the file, with dots replaced by underscores
// (e.g. TCPUTILS_TCPUTILS_LOG_LEVEL overrides tcputils.log.level).
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "Error reading config [%v]", path)
	}

	return NewViperConfig(v), nil
}

// Flattens a viper registry into a config.  Nested keys are joined with
// dots, matching the key names used throughout this module.
func NewViperConfig(v *viper.Viper) Config {
	internal := make(map[string]interface{})
	for _, key := range v.AllKeys() {
		internal[key] = v.Get(key)
	}
	return NewConfig(internal)
}
