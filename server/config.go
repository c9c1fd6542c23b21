package server

import (
	"net"
	"strconv"
)

const (
	DefaultAddress = "0.0.0.0"
	DefaultPort    = 8080

	// listen(2) backlog
	DefaultBacklog = 10
	// 1回の読み込みで受け取る最大バイト数
	DefaultReadBufferSize = 1024
)

type Config struct {
	Protocol       string
	Address        string
	Port           int
	Backlog        int
	ReadBufferSize int
}

func DefaultConfig(protocol string) Config {
	return Config{
		Protocol:       protocol,
		Address:        DefaultAddress,
		Port:           DefaultPort,
		Backlog:        DefaultBacklog,
		ReadBufferSize: DefaultReadBufferSize,
	}
}

// ListenAddress returns address:port, bracketing IPv6 literals.
func (c Config) ListenAddress() string {
	return net.JoinHostPort(c.Address, strconv.Itoa(c.Port))
}

func (c Config) withDefaults() Config {
	if c.Backlog <= 0 {
		c.Backlog = DefaultBacklog
	}
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = DefaultReadBufferSize
	}
	if c.Address == "" {
		c.Address = DefaultAddress
	}
	return c
}
