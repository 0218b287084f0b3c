// Package hostport turns listener addresses into addresses consumers can
// dial.
package hostport

import (
	"net"

	"github.com/go-pantheon/fabrica-util/errors"
)

var ErrInvalidHostPort = errors.New("invalid host:port")

// Extract returns a dialable address for a listener bound to hostPort. An
// empty or unspecified host is replaced by the internal IP of the machine,
// or by the loopback address when there is none.
func Extract(hostPort string) (string, error) {
	host, port, err := net.SplitHostPort(hostPort)
	if err != nil {
		return "", errors.Wrapf(ErrInvalidHostPort, "addr=%s err=%v", hostPort, err)
	}

	if ip := net.ParseIP(host); host != "" && (ip == nil || !ip.IsUnspecified()) {
		return net.JoinHostPort(host, port), nil
	}

	if ip := InternalIP(); ip != "" {
		return net.JoinHostPort(ip, port), nil
	}

	return net.JoinHostPort("127.0.0.1", port), nil
}

// InternalIP returns the first private IPv4 address of an interface that is
// up and not a loopback, or "" if there is none.
func InternalIP() string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return ""
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			ipnet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}

			if ip := ipnet.IP.To4(); ip != nil && isPrivateIP(ip.String()) {
				return ip.String()
			}
		}
	}

	return ""
}

func isPrivateIP(addr string) bool {
	ip := net.ParseIP(addr)
	return ip != nil && ip.IsPrivate()
}
