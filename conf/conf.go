package conf

import (
	"time"
)

const (
	DefaultPort       = 18944
	DefaultStreamName = "IGTL"

	NetworkTCP       = "tcp"
	NetworkWebSocket = "ws"
	NetworkKCP       = "kcp"
)

type Config struct {
	Sink      Sink      `json:"sink"`
	TCP       TCP       `json:"tcp"`
	WebSocket WebSocket `json:"websocket"`
	KCP       KCP       `json:"kcp"`
	Health    Health    `json:"health"`
}

type Sink struct {
	// Port is the listener port, 1-65535.
	Port int `json:"port"`
	// StreamName is the device name written into every message.
	StreamName string `json:"stream_name"`
	// Network selects the listener transport: tcp, ws or kcp.
	Network string `json:"network"`
	// Host is the bind host. Empty binds all interfaces.
	Host         string   `json:"host"`
	WriteTimeout Duration `json:"write_timeout"`
	StopTimeout  Duration `json:"stop_timeout"`
}

type TCP struct {
	KeepAlive    bool `json:"keep_alive"`
	NoDelay      bool `json:"no_delay"`
	WriteBufSize int  `json:"write_buf_size"`
}

type WebSocket struct {
	Path         string   `json:"path"`
	AllowOrigins []string `json:"allow_origins"`
	ReadBufSize  int      `json:"read_buf_size"`
	WriteBufSize int      `json:"write_buf_size"`
}

type KCP struct {
	MTU          int    `json:"mtu"`
	DataShards   int    `json:"data_shards"`
	ParityShards int    `json:"parity_shards"`
	NoDelay      [4]int `json:"no_delay"`
	WindowSize   [2]int `json:"window_size"`
	ACKNoDelay   bool   `json:"ack_no_delay"`
	WriteDelay   bool   `json:"write_delay"`
	StreamMode   bool   `json:"stream_mode"`
}

type Health struct {
	// Addr of the health and metrics http server. Empty disables it.
	Addr string `json:"addr"`
}

func Default() Config {
	sink := Sink{
		Port:         DefaultPort,
		StreamName:   DefaultStreamName,
		Network:      NetworkTCP,
		WriteTimeout: Duration(time.Second * 2),
		StopTimeout:  Duration(time.Second * 10),
	}

	tcp := TCP{
		KeepAlive:    true,
		NoDelay:      true,
		WriteBufSize: 1 << 20,
	}

	ws := WebSocket{
		Path:         "/igtl",
		ReadBufSize:  4096,
		WriteBufSize: 1 << 16,
	}

	kcp := KCP{
		MTU:          1400,
		DataShards:   10,
		ParityShards: 3,
		NoDelay:      [4]int{1, 10, 2, 1},
		WindowSize:   [2]int{1024, 1024},
		ACKNoDelay:   true,
		WriteDelay:   false,
		StreamMode:   true,
	}

	return Config{
		Sink:      sink,
		TCP:       tcp,
		WebSocket: ws,
		KCP:       kcp,
		Health: Health{
			Addr: ":18945",
		},
	}
}
