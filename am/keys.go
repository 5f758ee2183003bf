package am

import (
	"github.com/BurntSushi/toml"

	"github.com/teranos/sentinel/errors"
)

// CheckUnknownKeys strictly decodes the file and returns every key that does
// not map onto Config, e.g. a misspelled "exection_time" in a channel entry.
// viper silently ignores such keys, so the daemon logs these as warnings.
func CheckUnknownKeys(configPath string) ([]string, error) {
	var cfg Config
	md, err := toml.DecodeFile(configPath, &cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s", configPath)
	}

	undecoded := md.Undecoded()
	keys := make([]string, 0, len(undecoded))
	for _, k := range undecoded {
		keys = append(keys, k.String())
	}
	return keys, nil
}
