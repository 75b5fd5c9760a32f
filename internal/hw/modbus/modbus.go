// Package modbus implements a Modbus client usable as an alternate
// hardware backend for the BPM, BIC, and magnet models, in place of the
// built-in simulation.
package modbus

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"beamctl/internal/hw/comm"

	"github.com/goburrow/modbus"
)

// Config configures a Modbus client: transport type, addressing, and the
// shared connection parameters (timeout, retry).
type Config struct {
	comm.ConnectionConfig `yaml:",inline"`

	Type     string `yaml:"type"` // "tcp", "rtu", "ascii"
	Address  string `yaml:"address"`
	Port     int    `yaml:"port"`
	BaudRate int    `yaml:"baud_rate"`
	DataBits int    `yaml:"data_bits"`
	StopBits int    `yaml:"stop_bits"`
	Parity   string `yaml:"parity"` // "N", "E", "O"
	SlaveID  byte   `yaml:"slave_id"`
	Timeout  string `yaml:"timeout"`
}

// Client wraps goburrow/modbus's Client behind the CommunicationInterface
// contract, addressing registers by their decimal string address.
type Client struct {
	*comm.BaseCommunication
	config  Config
	client  modbus.Client
	handler modbus.ClientHandler
}

func NewClient(config Config) *Client {
	base := comm.NewBaseCommunication(config.ConnectionConfig)
	return &Client{BaseCommunication: base, config: config}
}

func (mc *Client) Connect(ctx context.Context) error {
	mc.SetStatus(comm.StatusConnecting)

	var err error
	switch mc.config.Type {
	case "tcp":
		err = mc.connectTCP(ctx)
	case "rtu":
		err = mc.connectRTU(ctx)
	case "ascii":
		err = mc.connectASCII(ctx)
	default:
		return fmt.Errorf("unsupported Modbus type: %s", mc.config.Type)
	}

	if err != nil {
		mc.SetStatus(comm.StatusError)
		return mc.HandleWithError(err)
	}

	mc.SetStatus(comm.StatusConnected)
	mc.EmitConnected()
	return nil
}

func (mc *Client) connectTCP(ctx context.Context) error {
	address := fmt.Sprintf("%s:%d", mc.config.Address, mc.config.Port)
	handler := modbus.NewTCPClientHandler(address)

	timeout, err := time.ParseDuration(mc.config.Timeout)
	if err != nil {
		timeout = 10 * time.Second
	}
	handler.Timeout = timeout

	if err := handler.Connect(); err != nil {
		return fmt.Errorf("failed to connect TCP Modbus: %w", err)
	}

	mc.handler = handler
	mc.client = modbus.NewClient(handler)
	return nil
}

func (mc *Client) connectRTU(ctx context.Context) error {
	handler := modbus.NewRTUClientHandler(mc.config.Address)
	handler.BaudRate = mc.config.BaudRate
	handler.DataBits = mc.config.DataBits
	handler.StopBits = mc.config.StopBits
	handler.Parity = mc.config.Parity
	handler.SlaveId = mc.config.SlaveID
	handler.Timeout = 5 * time.Second

	if err := handler.Connect(); err != nil {
		return fmt.Errorf("failed to connect RTU Modbus: %w", err)
	}

	mc.handler = handler
	mc.client = modbus.NewClient(handler)
	return nil
}

func (mc *Client) connectASCII(ctx context.Context) error {
	handler := modbus.NewASCIIClientHandler(mc.config.Address)
	handler.BaudRate = mc.config.BaudRate
	handler.DataBits = mc.config.DataBits
	handler.StopBits = mc.config.StopBits
	handler.Parity = mc.config.Parity
	handler.SlaveId = mc.config.SlaveID
	handler.Timeout = 5 * time.Second

	if err := handler.Connect(); err != nil {
		return fmt.Errorf("failed to connect ASCII Modbus: %w", err)
	}

	mc.handler = handler
	mc.client = modbus.NewClient(handler)
	return nil
}

func (mc *Client) Disconnect(ctx context.Context) error {
	if mc.handler != nil {
		mc.handler = nil
		mc.client = nil
	}

	mc.SetStatus(comm.StatusDisconnected)
	mc.EmitDisconnected()
	return nil
}

func (mc *Client) Reconnect(ctx context.Context) error {
	if err := mc.Disconnect(ctx); err != nil {
		return err
	}
	return mc.Connect(ctx)
}

// Read reads length holding registers starting at address (1-based decimal,
// per Modbus convention) and returns their raw big-endian bytes.
func (mc *Client) Read(ctx context.Context, address string, length int) ([]byte, error) {
	if !mc.IsConnected() {
		return nil, fmt.Errorf("modbus client not connected")
	}

	addr, quantity, err := mc.parseAddress(address, length)
	if err != nil {
		return nil, err
	}

	var results []byte
	err = mc.RetryWithTimeout(ctx, func() error {
		var err error
		results, err = mc.client.ReadHoldingRegisters(addr, quantity)
		return err
	})

	if err != nil {
		return nil, mc.HandleWithError(err)
	}

	mc.EmitDataReceived(address, results)
	return results, nil
}

// Write writes data (pairs of bytes, one per register) starting at address.
func (mc *Client) Write(ctx context.Context, address string, data []byte) error {
	if !mc.IsConnected() {
		return fmt.Errorf("modbus client not connected")
	}

	addr, _, err := mc.parseAddress(address, len(data)/2)
	if err != nil {
		return err
	}

	values := make([]uint16, len(data)/2)
	for i := 0; i < len(values); i++ {
		values[i] = uint16(data[i*2])<<8 | uint16(data[i*2+1])
	}

	byteValues := make([]byte, len(values)*2)
	for i, v := range values {
		byteValues[i*2] = byte(v >> 8)
		byteValues[i*2+1] = byte(v & 0xFF)
	}

	err = mc.RetryWithTimeout(ctx, func() error {
		_, err := mc.client.WriteMultipleRegisters(addr, uint16(len(values)), byteValues)
		return err
	})

	if err != nil {
		return mc.HandleWithError(err)
	}

	mc.EmitDataWritten(address, data)
	return nil
}

// ReadRegisterFloat reads one holding register and scales it to an
// engineering value: raw signed 16-bit counts divided by scale.
func (mc *Client) ReadRegisterFloat(ctx context.Context, register uint16, scale float64) (float64, error) {
	data, err := mc.Read(ctx, strconv.Itoa(int(register)+1), 1)
	if err != nil {
		return 0, err
	}
	raw := int16(uint16(data[0])<<8 | uint16(data[1]))
	return float64(raw) / scale, nil
}

// WriteRegisterFloat scales value by scale into signed 16-bit counts and
// writes it to one holding register.
func (mc *Client) WriteRegisterFloat(ctx context.Context, register uint16, value, scale float64) error {
	raw := int16(value * scale)
	data := []byte{byte(uint16(raw) >> 8), byte(uint16(raw) & 0xFF)}
	return mc.Write(ctx, strconv.Itoa(int(register)+1), data)
}

func (mc *Client) BulkRead(ctx context.Context, addresses []string) (map[string][]byte, error) {
	results := make(map[string][]byte)
	for _, addr := range addresses {
		data, err := mc.Read(ctx, addr, 1)
		if err != nil {
			return nil, err
		}
		results[addr] = data
	}
	return results, nil
}

func (mc *Client) BulkWrite(ctx context.Context, data map[string][]byte) error {
	for address, value := range data {
		if err := mc.Write(ctx, address, value); err != nil {
			return err
		}
	}
	return nil
}

// parseAddress accepts a plain decimal register address (1-based, per
// Modbus convention — register "1" maps to protocol address 0).
func (mc *Client) parseAddress(address string, length int) (addr, quantity uint16, err error) {
	addrInt, err := strconv.Atoi(address)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid Modbus address: %s", address)
	}

	if addrInt > 0 {
		addrInt--
	}

	return uint16(addrInt), uint16(length), nil
}

func (mc *Client) GetConfig() interface{} { return mc.config }

func (mc *Client) SetConfig(config interface{}) error {
	if cfg, ok := config.(Config); ok {
		mc.config = cfg
		return nil
	}
	return fmt.Errorf("invalid config type for modbus.Client")
}

// Discovery enumerates Modbus devices reachable from a given client config.
type Discovery struct {
	config Config
}

func NewDiscovery(config Config) *Discovery { return &Discovery{config: config} }

func (md *Discovery) DiscoverDevices(ctx context.Context, timeout time.Duration) ([]comm.DeviceInfo, error) {
	var devices []comm.DeviceInfo

	if md.config.Type == "tcp" {
		devices = append(devices, md.discoverTCPDevices(ctx, timeout)...)
	}
	if md.config.Type == "rtu" || md.config.Type == "ascii" {
		devices = append(devices, md.discoverSerialDevices(ctx, timeout)...)
	}

	return devices, nil
}

func (md *Discovery) discoverTCPDevices(ctx context.Context, timeout time.Duration) []comm.DeviceInfo {
	return []comm.DeviceInfo{
		{
			ID:      "modbus-tcp-001",
			Address: fmt.Sprintf("%s:%d", md.config.Address, md.config.Port),
			Type:    "modbus-tcp",
			Model:   "Generic Modbus TCP Device",
			Properties: map[string]interface{}{
				"type":     "tcp",
				"slave_id": md.config.SlaveID,
			},
		},
	}
}

func (md *Discovery) discoverSerialDevices(ctx context.Context, timeout time.Duration) []comm.DeviceInfo {
	return []comm.DeviceInfo{
		{
			ID:      "modbus-serial-001",
			Address: md.config.Address,
			Type:    "modbus-serial",
			Model:   "Generic Modbus Serial Device",
			Properties: map[string]interface{}{
				"type":      md.config.Type,
				"baud_rate": md.config.BaudRate,
				"slave_id":  md.config.SlaveID,
			},
		},
	}
}

func (md *Discovery) PingDevice(ctx context.Context, address string) (bool, error) {
	client := NewClient(md.config)

	if err := client.Connect(ctx); err != nil {
		return false, err
	}
	defer client.Disconnect(ctx)

	_, err := client.Read(ctx, "0", 1)
	return err == nil, nil
}
