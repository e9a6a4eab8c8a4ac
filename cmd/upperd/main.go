// Command upperd is the upper-computer controller: it watches a directory
// for job files, assembles them into LED triplets, and drives the device
// over a framed serial protocol until interrupted.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	"github.com/yaoqih/material-identification-upper-computer/internal/config"
	"github.com/yaoqih/material-identification-upper-computer/internal/dispatcher"
	"github.com/yaoqih/material-identification-upper-computer/internal/grouping"
	"github.com/yaoqih/material-identification-upper-computer/internal/ingress"
	"github.com/yaoqih/material-identification-upper-computer/internal/logging"
	"github.com/yaoqih/material-identification-upper-computer/internal/mapping"
	"github.com/yaoqih/material-identification-upper-computer/internal/printer"
	"github.com/yaoqih/material-identification-upper-computer/internal/session"
	"github.com/yaoqih/material-identification-upper-computer/internal/transport"
)

const defaultConfigPath = "config.yaml"

func main() {
	var configPath = pflag.String("config", "", "Path to the YAML configuration file (falls back to APP_CONFIG_PATH, then a built-in default).")
	var help = pflag.Bool("help", false, "Display help text.")

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s - LED matrix upper-computer controller.\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\n")
		fmt.Fprintf(os.Stderr, "Watches for job files, assembles them into triplets, and drives the\n")
		fmt.Fprintf(os.Stderr, "device over the framed serial protocol until interrupted.\n")
		fmt.Fprintf(os.Stderr, "\n")
		pflag.PrintDefaults()
	}
	pflag.Parse()

	if *help {
		pflag.Usage()
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath, defaultConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "upperd: %v\n", err)
		os.Exit(1)
	}

	appLog, err := logging.New(cfg, "upperd")
	if err != nil {
		fmt.Fprintf(os.Stderr, "upperd: %v\n", err)
		os.Exit(1)
	}
	deviceInfoLog, err := logging.NewDeviceInfoLogger(cfg)
	if err != nil {
		appLog.Fatal("building device-info logger", "err", err)
	}

	for _, dir := range []string{cfg.Grouping.WatchDir, cfg.Grouping.WorkDir, cfg.Grouping.DoneDir, cfg.Grouping.ErrorDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			appLog.Fatal("creating pipeline directory", "dir", dir, "err", err)
		}
	}

	mapper := mapping.New(cfg)
	grouper, err := grouping.New(cfg)
	if err != nil {
		appLog.Fatal("building grouper", "err", err)
	}
	ing := ingress.New(cfg, mapper, appLog.With("component", "ingress"))
	disp, err := dispatcher.New(cfg.Grouping.WorkDir, cfg.Grouping.DoneDir, cfg.Grouping.ErrorDir, grouper, mapper, appLog.With("component", "dispatcher"))
	if err != nil {
		appLog.Fatal("building dispatcher", "err", err)
	}
	printr := printer.New(cfg, appLog.With("component", "printer"))

	// stopCh is closed once, on the first SIGINT/SIGTERM, and is shared by
	// every loop in the process (ingress, serial-open backoff) so a signal
	// arriving before the device is even connected still unwinds cleanly
	// instead of leaving the backoff loop to spin forever.
	stopCh := make(chan struct{})
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		close(stopCh)
	}()

	ingressDone := make(chan struct{})
	go runIngressLoop(cfg, ing, disp, appLog.With("component", "ingress-loop"), stopCh, ingressDone)

	port, err := openSerialWithBackoff(cfg, appLog.With("component", "transport"), stopCh)
	if err != nil {
		<-ingressDone
		if err == errShutdownRequested {
			appLog.Info("shutdown requested before serial opened")
			appLog.Info("stopped")
			return
		}
		appLog.Fatal("opening serial transport", "err", err)
	}

	sess := session.New(cfg, port, dispatchHandler(disp), appLog.With("component", "session"), deviceInfoLog)
	sess.OnA1Result = func(ok bool) {
		key := disp.PendingKey()
		disp.ArchivePending(ok)
		if ok && key != "" {
			printr.PrintLabels([]string{key}, 0)
		}
	}

	appLog.Info("upperd started")
	<-stopCh

	appLog.Info("shutting down")
	sess.Close()
	<-ingressDone
	_ = port.Close()
	appLog.Info("stopped")
}

// dispatchHandler adapts the dispatcher's (Payload, error) return shape to
// the session's (indices, attrs, colors []int) RequestHandler signature. A
// compose failure is logged by the dispatcher and surfaces here as an empty
// payload, same as an empty queue.
func dispatchHandler(disp *dispatcher.Dispatcher) session.RequestHandler {
	return func() ([]int, []int, []int) {
		payload, err := disp.RequestNextPayload()
		if err != nil {
			return nil, nil, nil
		}
		return payload.Indices, payload.Attrs, payload.Colors
	}
}

// runIngressLoop runs the combined ingest+reload cycle at 1 Hz (spec.md §5):
// each tick ingests newly-ready job pairs from watch_dir into work_dir (or
// error_dir on validation failure), then rebuilds the dispatcher's queue so
// the previous tick's partial trailing triplet is naturally completed.
func runIngressLoop(cfg *config.Config, ing *ingress.Ingress, disp *dispatcher.Dispatcher, logger *charmlog.Logger, stop, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			moved, errored, err := ing.IngestBatch(cfg.Grouping.WatchDir, cfg.Grouping.WorkDir, cfg.Grouping.ErrorDir)
			if err != nil {
				logger.Error("ingest cycle failed", "err", err)
				continue
			}
			if len(moved) > 0 || len(errored) > 0 {
				logger.Info("ingest cycle", "moved", len(moved), "rejected", len(errored))
			}
			if err := disp.Reload(); err != nil {
				logger.Error("dispatcher reload failed", "err", err)
			}
		}
	}
}

// errShutdownRequested is returned by openSerialWithBackoff when stop fires
// before any configured port could be opened.
var errShutdownRequested = fmt.Errorf("shutdown requested before serial opened")

// openSerialWithBackoff opens the first configured (or discovered) serial
// port it can, retrying the whole list with exponential backoff from 5s up
// to a 30s cap until one succeeds. stop, if closed while waiting on a port
// or on the backoff timer, aborts the loop immediately with
// errShutdownRequested rather than spinning forever.
func openSerialWithBackoff(cfg *config.Config, logger *charmlog.Logger, stop <-chan struct{}) (transport.Transport, error) {
	ports := cfg.Serial.Ports
	if len(ports) == 0 {
		if discovered, err := transport.DiscoverPorts(); err == nil {
			ports = discovered
		}
	}
	if len(ports) == 0 {
		return nil, fmt.Errorf("no serial ports configured or discovered")
	}

	backoff := 5 * time.Second
	const maxBackoff = 30 * time.Second
	for {
		for _, p := range ports {
			select {
			case <-stop:
				return nil, errShutdownRequested
			default:
			}
			port := transport.NewSerialPort()
			if err := port.Open(p, cfg.Serial.Baud); err == nil {
				logger.Info("serial port opened", "port", p)
				return port, nil
			} else {
				logger.Warn("serial port open failed", "port", p, "err", err)
			}
		}
		logger.Warn("all serial ports unavailable, backing off", "backoff", backoff)
		timer := time.NewTimer(backoff)
		select {
		case <-stop:
			timer.Stop()
			return nil, errShutdownRequested
		case <-timer.C:
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}
