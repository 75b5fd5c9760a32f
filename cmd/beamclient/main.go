// Command beamclient is a small operator tool for talking to a running
// beamctl instance: it can send a single JSON command to the command
// endpoint and print the reply, or subscribe to the telemetry endpoint and
// stream frames to stdout.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

func main() {
	var (
		commandAddr   = flag.String("command", "127.0.0.1:5555", "beamctl command endpoint")
		telemetryAddr = flag.String("telemetry", "127.0.0.1:5556", "beamctl telemetry endpoint")
		action        = flag.String("cmd", "", "command to send (get_status, set_pid, set_freq, set_setpoint, recommission, emergency_stop, enable_control, stop)")
		params        = flag.String("params", "", "comma-separated key=value command parameters, e.g. kp=0.5,ki=0.1")
		stream        = flag.Bool("stream", false, "subscribe to the telemetry endpoint instead of sending a command")
		timeout       = flag.Duration("timeout", 5*time.Second, "command round-trip timeout")
	)
	flag.Parse()

	if *stream {
		if err := streamTelemetry(*telemetryAddr); err != nil {
			fmt.Fprintf(os.Stderr, "beamclient: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if *action == "" {
		fmt.Fprintln(os.Stderr, "beamclient: one of -cmd or -stream is required")
		flag.Usage()
		os.Exit(2)
	}

	resp, err := sendCommand(*commandAddr, *action, *params, *timeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "beamclient: %v\n", err)
		os.Exit(1)
	}

	encoded, _ := json.MarshalIndent(resp, "", "  ")
	fmt.Println(string(encoded))
}

func sendCommand(addr, action, params string, timeout time.Duration) (map[string]interface{}, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("dial command endpoint: %w", err)
	}
	defer conn.Close()

	request := map[string]interface{}{"cmd": action}
	for key, value := range parseParams(params) {
		request[key] = value
	}

	conn.SetDeadline(time.Now().Add(timeout))

	encoded, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	if _, err := conn.Write(append(encoded, '\n')); err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}

	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var resp map[string]interface{}
	if err := json.Unmarshal([]byte(line), &resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return resp, nil
}

// parseParams turns "kp=0.5,ki=0.1" into {"kp":0.5,"ki":0.1}, coercing
// numeric-looking values to float64, values strconv.ParseBool accepts to
// bool, and leaving everything else as a string.
func parseParams(raw string) map[string]interface{} {
	result := make(map[string]interface{})
	if raw == "" {
		return result
	}
	for _, pair := range strings.Split(raw, ",") {
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key, value := parts[0], parts[1]
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			result[key] = f
			continue
		}
		if b, err := strconv.ParseBool(value); err == nil {
			result[key] = b
			continue
		}
		result[key] = value
	}
	return result
}

func streamTelemetry(addr string) error {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("dial telemetry endpoint: %w", err)
	}
	defer conn.Close()

	fmt.Fprintf(os.Stderr, "subscribed to %s, press Ctrl+C to stop\n", addr)

	reader := bufio.NewReader(conn)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("telemetry stream closed: %w", err)
		}
		fmt.Print(line)
	}
}
