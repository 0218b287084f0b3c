package conf

import (
	"github.com/go-pantheon/fabrica-util/errors"
)

var (
	ErrInvalidPort    = errors.New("port must be between 1 and 65535")
	ErrInvalidNetwork = errors.New("unknown network")
)

// ValidatePort reports whether port is usable as a listener port.
func ValidatePort(port int) error {
	if port < 1 || port > 65535 {
		return errors.Wrapf(ErrInvalidPort, "port=%d", port)
	}

	return nil
}

func (c Config) Validate() error {
	if err := c.Sink.Validate(); err != nil {
		return err
	}

	if c.Sink.Network == NetworkKCP {
		if err := c.KCP.Validate(); err != nil {
			return err
		}
	}

	return nil
}

func (s Sink) Validate() error {
	if err := ValidatePort(s.Port); err != nil {
		return err
	}

	switch s.Network {
	case NetworkTCP, NetworkWebSocket, NetworkKCP:
	default:
		return errors.Wrapf(ErrInvalidNetwork, "network=%q", s.Network)
	}

	if s.WriteTimeout < 0 {
		return errors.Errorf("invalid write_timeout: %s, must not be negative", s.WriteTimeout)
	}

	return nil
}

func (k KCP) Validate() error {
	if k.MTU < 576 || k.MTU > 1500 {
		return errors.Errorf("invalid MTU: %d, must be between 576 and 1500", k.MTU)
	}

	if k.DataShards < 0 || k.DataShards > 255 {
		return errors.Errorf("invalid DataShards: %d, must be between 0 and 255", k.DataShards)
	}

	if k.ParityShards < 0 || k.ParityShards > 255 {
		return errors.Errorf("invalid ParityShards: %d, must be between 0 and 255", k.ParityShards)
	}

	if k.WindowSize[0] <= 0 || k.WindowSize[1] <= 0 {
		return errors.Errorf("invalid WindowSize: %v, both send and receive windows must be positive", k.WindowSize)
	}

	return nil
}
