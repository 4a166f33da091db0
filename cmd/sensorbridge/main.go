// cmd/sensorbridge/main.go
package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/tamzrod/sensor-bridge/internal/config"
	"github.com/tamzrod/sensor-bridge/internal/errlog"
	"github.com/tamzrod/sensor-bridge/internal/flash"
	"github.com/tamzrod/sensor-bridge/internal/stream"
	"github.com/tamzrod/sensor-bridge/internal/transport/usb"
)

func main() {
	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "usage: sensorbridge <config.yaml> <count|log|clear|stream>")
		os.Exit(2)
	}

	cfgPath := os.Args[1]
	command := os.Args[2]

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	// --------------------
	// Load + validate config
	// --------------------

	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Error("config load failed", "err", err)
		os.Exit(1)
	}
	if err := config.Validate(cfg); err != nil {
		logger.Error("config validation failed", "err", err)
		os.Exit(1)
	}
	config.Normalize(cfg)

	// --------------------
	// Connect
	// --------------------

	dev := cfg.Bridge.Device
	client, err := usb.Open(usb.Config{
		VID:             dev.VID,
		PID:             dev.PID,
		BulkInEndpoint:  dev.BulkInEndpoint,
		ConnectAttempts: dev.ConnectAttempts,
		ConnectDelay:    time.Duration(dev.ConnectDelayMs) * time.Millisecond,
		Logger:          logger,
	})
	if err != nil {
		logger.Error("device open failed", "vid", dev.VID, "pid", dev.PID, "err", err)
		os.Exit(1)
	}
	defer client.Close()

	logger.Info("device connected", "label", dev.Label)

	store := errlog.NewStore(flash.New(client))

	switch command {
	case "count":
		n, err := store.Count()
		if err != nil {
			logger.Error("count read failed", "err", err)
			os.Exit(1)
		}
		fmt.Println(n)

	case "log":
		entries, err := store.Entries()
		if err != nil {
			logger.Error("log read failed", "err", err)
			os.Exit(1)
		}
		for i, e := range entries {
			fmt.Printf("%4d  %s\n", i, e)
		}

	case "clear":
		if err := store.Clear(); err != nil {
			logger.Error("log clear failed", "err", err)
			os.Exit(1)
		}
		logger.Info("error log cleared")

	case "stream":
		if err := runStream(cfg, client, logger); err != nil {
			logger.Error("stream failed", "err", err)
			os.Exit(1)
		}

	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", command)
		os.Exit(2)
	}
}

// runStream arms one buffered session from config and polls it to
// completion, printing converted register values per packet.
func runStream(cfg *config.Config, client *usb.Client, logger *slog.Logger) error {
	sc := cfg.Bridge.Stream
	if len(sc.Registers) == 0 {
		return fmt.Errorf("no stream registers configured")
	}

	regs := make(stream.RegisterSet, 0, len(sc.Registers))
	for _, r := range sc.Registers {
		regs = append(regs, stream.Register{Address: r.Address, Page: r.Page, Width: r.Width})
	}

	usbTimeout := time.Duration(cfg.Bridge.Device.ControlTimeoutMs) * time.Millisecond
	engine := stream.NewEngine(client, bulkSource{client}, usbTimeout)

	err := engine.Start(stream.Config{
		Registers:         regs,
		CapturesPerBuffer: sc.CapturesPerBuffer,
		NumBuffers:        sc.NumBuffers,
		Timeout:           time.Duration(sc.TimeoutMs) * time.Millisecond,
	})
	if err != nil {
		return err
	}
	defer engine.Stop()

	for engine.State() != stream.Idle {
		pkt, ok, err := engine.NextPacket()
		if err != nil {
			return err
		}
		if !ok {
			time.Sleep(5 * time.Millisecond)
			continue
		}

		values, err := pkt.Values()
		if err != nil {
			return err
		}
		logger.Info("packet", "seq", pkt.Seq, "values", len(values))
		fmt.Println(values)
	}
	return nil
}

// bulkSource adapts the USB client's bulk channel to the stream engine.
type bulkSource struct {
	client *usb.Client
}

func (s bulkSource) ReadBuffer(buf []byte, timeout time.Duration) (int, error) {
	return s.client.ReadBulk(buf, timeout)
}
