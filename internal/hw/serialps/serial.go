// Package serial implements a serial-line client for an ASCII magnet power
// supply protocol — "I=<amps>\n" to command a current, "I?\n" to query it —
// usable as an alternate hardware backend for the magnet model.
package serial

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"beamctl/internal/hw/comm"

	goserial "github.com/jacobsa/go-serial/serial"
)

// Config configures the serial port and the power supply's ASCII protocol.
type Config struct {
	comm.ConnectionConfig `yaml:",inline"`

	PortName    string `yaml:"port_name"`
	BaudRate    int    `yaml:"baud_rate"`
	DataBits    int    `yaml:"data_bits"`
	StopBits    int    `yaml:"stop_bits"`
	Parity      string `yaml:"parity"` // "N", "E", "O"
	Timeout     string `yaml:"timeout"`
	FlowControl bool   `yaml:"flow_control"`
}

// Client talks the power supply's ASCII line protocol over a serial port.
type Client struct {
	*comm.BaseCommunication
	config   Config
	port     io.ReadWriteCloser
	reader   *bufio.Reader
	mu       sync.Mutex
	stopChan chan struct{}
}

func NewClient(config Config) *Client {
	base := comm.NewBaseCommunication(config.ConnectionConfig)
	return &Client{BaseCommunication: base, config: config, stopChan: make(chan struct{})}
}

func (sc *Client) Connect(ctx context.Context) error {
	sc.SetStatus(comm.StatusConnecting)

	options := goserial.OpenOptions{
		PortName:        sc.config.PortName,
		BaudRate:        uint(sc.config.BaudRate),
		DataBits:        uint(sc.config.DataBits),
		StopBits:        uint(sc.config.StopBits),
		MinimumReadSize: 1,
	}

	switch sc.config.Parity {
	case "N", "n":
		options.ParityMode = goserial.PARITY_NONE
	case "E", "e":
		options.ParityMode = goserial.PARITY_EVEN
	case "O", "o":
		options.ParityMode = goserial.PARITY_ODD
	default:
		options.ParityMode = goserial.PARITY_NONE
	}

	if sc.config.FlowControl {
		options.RTSCTSFlowControl = true
	}

	port, err := goserial.Open(options)
	if err != nil {
		sc.SetStatus(comm.StatusError)
		return fmt.Errorf("failed to open serial port %s: %w", sc.config.PortName, err)
	}

	sc.mu.Lock()
	sc.port = port
	sc.reader = bufio.NewReader(port)
	sc.mu.Unlock()

	sc.SetStatus(comm.StatusConnected)
	sc.EmitConnected()
	return nil
}

func (sc *Client) Disconnect(ctx context.Context) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.port != nil {
		err := sc.port.Close()
		sc.port = nil
		sc.reader = nil

		if err != nil {
			return sc.HandleWithError(fmt.Errorf("failed to close serial port: %w", err))
		}
	}

	sc.SetStatus(comm.StatusDisconnected)
	sc.EmitDisconnected()
	return nil
}

func (sc *Client) Reconnect(ctx context.Context) error {
	if err := sc.Disconnect(ctx); err != nil {
		return err
	}
	return sc.Connect(ctx)
}

// QueryCurrent sends "I?\n" and parses the "I=<amps>\n" reply.
func (sc *Client) QueryCurrent() (float64, error) {
	if !sc.IsConnected() {
		return 0, fmt.Errorf("serial client not connected")
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.port == nil {
		return 0, fmt.Errorf("serial port not open")
	}

	if _, err := sc.port.Write([]byte("I?\n")); err != nil {
		return 0, sc.HandleWithError(fmt.Errorf("failed to write query: %w", err))
	}

	line, err := sc.reader.ReadString('\n')
	if err != nil {
		return 0, sc.HandleWithError(fmt.Errorf("failed to read reply: %w", err))
	}

	return parseCurrentReply(line)
}

// SetCurrent sends "I=<amps>\n" to command a new current setpoint.
func (sc *Client) SetCurrent(amps float64) error {
	if !sc.IsConnected() {
		return fmt.Errorf("serial client not connected")
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.port == nil {
		return fmt.Errorf("serial port not open")
	}

	line := fmt.Sprintf("I=%.6f\n", amps)
	if _, err := sc.port.Write([]byte(line)); err != nil {
		return sc.HandleWithError(fmt.Errorf("failed to write command: %w", err))
	}

	sc.EmitDataWritten("I", []byte(line))
	return nil
}

func parseCurrentReply(line string) (float64, error) {
	line = strings.TrimSpace(line)
	line = strings.TrimPrefix(line, "I=")
	line = strings.TrimPrefix(line, "I ")
	value, err := strconv.ParseFloat(strings.TrimSpace(line), 64)
	if err != nil {
		return 0, fmt.Errorf("unrecognized reply %q: %w", line, err)
	}
	return value, nil
}

// Read implements CommunicationInterface by mapping any address to a
// current query; length is ignored, there is only one register: "I".
func (sc *Client) Read(ctx context.Context, address string, length int) ([]byte, error) {
	value, err := sc.QueryCurrent()
	if err != nil {
		return nil, err
	}
	data := []byte(fmt.Sprintf("%.6f", value))
	sc.EmitDataReceived(address, data)
	return data, nil
}

// Write implements CommunicationInterface by parsing data as a decimal
// current and commanding it.
func (sc *Client) Write(ctx context.Context, address string, data []byte) error {
	value, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("invalid current payload %q: %w", data, err)
	}
	return sc.SetCurrent(value)
}

func (sc *Client) BulkRead(ctx context.Context, addresses []string) (map[string][]byte, error) {
	results := make(map[string][]byte)
	for _, addr := range addresses {
		data, err := sc.Read(ctx, addr, 1)
		if err != nil {
			return nil, err
		}
		results[addr] = data
	}
	return results, nil
}

func (sc *Client) BulkWrite(ctx context.Context, data map[string][]byte) error {
	for address, value := range data {
		if err := sc.Write(ctx, address, value); err != nil {
			return err
		}
	}
	return nil
}

func (sc *Client) GetConfig() interface{} { return sc.config }

func (sc *Client) SetConfig(config interface{}) error {
	if cfg, ok := config.(Config); ok {
		sc.config = cfg
		return nil
	}
	return fmt.Errorf("invalid config type for serial.Client")
}

type Discovery struct {
	config Config
}

func NewDiscovery(config Config) *Discovery { return &Discovery{config: config} }

func (sd *Discovery) DiscoverDevices(ctx context.Context, timeout time.Duration) ([]comm.DeviceInfo, error) {
	return []comm.DeviceInfo{
		{
			ID:      "serial-psu-001",
			Address: sd.config.PortName,
			Type:    "serial",
			Model:   "ASCII magnet power supply",
			Properties: map[string]interface{}{
				"baud_rate":    sd.config.BaudRate,
				"data_bits":    sd.config.DataBits,
				"stop_bits":    sd.config.StopBits,
				"parity":       sd.config.Parity,
				"flow_control": sd.config.FlowControl,
			},
		},
	}, nil
}

func (sd *Discovery) PingDevice(ctx context.Context, address string) (bool, error) {
	client := NewClient(sd.config)

	if err := client.Connect(ctx); err != nil {
		return false, err
	}
	defer client.Disconnect(ctx)

	_, err := client.QueryCurrent()
	return err == nil, nil
}
