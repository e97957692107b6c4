// Package duration reads timeouts from configuration text.
package duration

import (
	"strconv"
	"strings"
	"time"

	"github.com/unkn0wn-root/hydro/internal/errdef"
)

// Duration is a time.Duration that decodes from config files and env
// values. Bare numbers are seconds.
type Duration time.Duration

// Parse accepts Go duration syntax ("1m30s", "250ms") or a bare number of
// seconds ("5", "0.5"). Negative values are rejected.
func Parse(value string) (time.Duration, error) {
	s := strings.TrimSpace(value)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		secs, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			return 0, errdef.Wrap(errdef.CodeConfig, err, "parse duration %q", value)
		}
		d = time.Duration(secs * float64(time.Second))
	}
	if d < 0 {
		return 0, errdef.New(errdef.CodeConfig, "duration %q is negative", value)
	}
	return d, nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Or returns d, or fallback when d is zero.
func (d Duration) Or(fallback time.Duration) time.Duration {
	if d == 0 {
		return fallback
	}
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := Parse(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}
