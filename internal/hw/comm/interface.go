package comm

import (
	"context"
	"time"
)

// ConnectionStatus reports a communication link's lifecycle state.
type ConnectionStatus int

const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusError
)

// ConnectionConfig holds the connection parameters common to every
// transport-specific backend (Modbus, serial).
type ConnectionConfig struct {
	Timeout       time.Duration `yaml:"timeout"`
	RetryCount    int           `yaml:"retry_count"`
	RetryInterval time.Duration `yaml:"retry_interval"`
	KeepAlive     bool          `yaml:"keep_alive"`
}

// CommunicationInterface is the transport-agnostic contract a hardware
// backend implements: connection lifecycle, addressed read/write, and
// event notification.
type CommunicationInterface interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	Reconnect(ctx context.Context) error

	GetStatus() ConnectionStatus
	GetLastError() error
	IsConnected() bool

	Read(ctx context.Context, address string, length int) ([]byte, error)
	Write(ctx context.Context, address string, data []byte) error

	BulkRead(ctx context.Context, addresses []string) (map[string][]byte, error)
	BulkWrite(ctx context.Context, data map[string][]byte) error

	GetConfig() interface{}
	SetConfig(config interface{}) error

	AddEventHandler(handler EventHandler)
	RemoveEventHandler(handler EventHandler)
}

// DiscoveryInterface is implemented by backends that can enumerate devices
// on their bus.
type DiscoveryInterface interface {
	DiscoverDevices(ctx context.Context, timeout time.Duration) ([]DeviceInfo, error)
	PingDevice(ctx context.Context, address string) (bool, error)
}

type DeviceInfo struct {
	ID           string                 `json:"id"`
	Address      string                 `json:"address"`
	Type         string                 `json:"type"`
	Model        string                 `json:"model,omitempty"`
	Version      string                 `json:"version,omitempty"`
	SerialNumber string                 `json:"serial_number,omitempty"`
	Vendor       string                 `json:"vendor,omitempty"`
	Properties   map[string]interface{} `json:"properties,omitempty"`
}

type ErrorHandler interface {
	HandleError(err error) error
	ShouldRetry(err error) bool
	GetRetryDelay(err error) time.Duration
}

type EventHandler interface {
	OnConnected()
	OnDisconnected()
	OnError(err error)
	OnDataReceived(address string, data []byte)
	OnDataWritten(address string, data []byte)
}
