package conf

import (
	"encoding/json"
	"time"

	"github.com/go-kratos/kratos/v2/config"
	"github.com/go-kratos/kratos/v2/config/file"
	"github.com/go-pantheon/fabrica-util/errors"

	_ "github.com/go-kratos/kratos/v2/encoding/json"
	_ "github.com/go-kratos/kratos/v2/encoding/yaml"
)

// Load reads a yaml or json file on top of Default and validates the result.
func Load(path string) (Config, error) {
	c := config.New(config.WithSource(file.NewSource(path)))
	defer func() {
		_ = c.Close()
	}()

	if err := c.Load(); err != nil {
		return Config{}, errors.Wrapf(err, "load config failed. path=%s", path)
	}

	cfg := Default()
	if err := c.Scan(&cfg); err != nil {
		return Config{}, errors.Wrapf(err, "scan config failed. path=%s", path)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Duration is a time.Duration read from "1.5s" style strings or from a
// number of nanoseconds.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return errors.Wrapf(err, "parse duration failed. v=%s", s)
		}

		*d = Duration(v)

		return nil
	}

	var n int64
	if err := json.Unmarshal(b, &n); err != nil {
		return errors.Wrapf(err, "duration must be a string or an integer. v=%s", b)
	}

	*d = Duration(n)

	return nil
}
