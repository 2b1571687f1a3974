// Command synicbench stress-tests the SynIC connection-port registry
// against a loopback partition. A YAML scenario describes the ports to
// register; worker goroutines then hammer post-message and
// signal-event dispatch the way per-VP exit handlers would.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/tinyrange/synic"
	"github.com/tinyrange/synic/hv"
	"github.com/tinyrange/synic/hvdef"
	"github.com/tinyrange/synic/internal/loopback"
)

type portSpec struct {
	ConnectionID uint32 `yaml:"connection_id"`
	Type         string `yaml:"type"`
	MinimumVtl   int    `yaml:"minimum_vtl"`
	OSEvent      bool   `yaml:"os_event"`
}

type scenario struct {
	Ports       []portSpec `yaml:"ports"`
	Workers     int        `yaml:"workers"`
	Operations  int        `yaml:"operations"`
	Vtl         int        `yaml:"vtl"`
	PayloadSize int        `yaml:"payload_size"`
}

func defaultScenario() scenario {
	return scenario{
		Ports: []portSpec{
			{ConnectionID: 1, Type: "message", MinimumVtl: 0},
			{ConnectionID: 2, Type: "message", MinimumVtl: 0},
			{ConnectionID: 3, Type: "event", MinimumVtl: 0},
			{ConnectionID: 4, Type: "event", MinimumVtl: 0, OSEvent: true},
		},
		Workers:     4,
		Operations:  1_000_000,
		Vtl:         0,
		PayloadSize: 240,
	}
}

func loadScenario(path string) (scenario, error) {
	s := defaultScenario()
	if path == "" {
		return s, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return s, fmt.Errorf("read scenario: %w", err)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("parse scenario: %w", err)
	}
	return s, nil
}

func (s scenario) validate() error {
	if len(s.Ports) == 0 {
		return fmt.Errorf("scenario has no ports")
	}
	for _, p := range s.Ports {
		if p.Type != "message" && p.Type != "event" {
			return fmt.Errorf("connection %#x: unknown port type %q", p.ConnectionID, p.Type)
		}
		if p.MinimumVtl < 0 || p.MinimumVtl > int(hvdef.Vtl2) {
			return fmt.Errorf("connection %#x: minimum_vtl %d out of range", p.ConnectionID, p.MinimumVtl)
		}
	}
	if s.Workers <= 0 {
		return fmt.Errorf("workers must be positive")
	}
	if s.Operations <= 0 {
		return fmt.Errorf("operations must be positive")
	}
	if s.Vtl < 0 || s.Vtl > int(hvdef.Vtl2) {
		return fmt.Errorf("vtl %d out of range", s.Vtl)
	}
	return nil
}

type countingMessagePort struct {
	count atomic.Uint64
}

func (p *countingMessagePort) HandleMessage(msg []byte, secure bool) bool {
	p.count.Add(1)
	return true
}

type countingEventPort struct {
	count atomic.Uint64
	event hv.Event
}

func (p *countingEventPort) HandleEvent(flag uint16) {
	p.count.Add(1)
}

func (p *countingEventPort) OSEvent() hv.Event { return p.event }

type benchPort struct {
	spec    portSpec
	message *countingMessagePort
	event   *countingEventPort
	handle  *synic.PortHandle
}

func run() error {
	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)

	scenarioPath := fs.String("scenario", "", "YAML scenario file (defaults to a built-in scenario)")
	workers := fs.Int("workers", 0, "override the scenario worker count")
	operations := fs.Int("n", 0, "override the scenario operation count")
	verbose := fs.Bool("v", false, "enable debug logging")

	if err := fs.Parse(os.Args[1:]); err != nil {
		return fmt.Errorf("parse args: %w", err)
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	s, err := loadScenario(*scenarioPath)
	if err != nil {
		return err
	}
	if *workers > 0 {
		s.Workers = *workers
	}
	if *operations > 0 {
		s.Operations = *operations
	}
	if err := s.validate(); err != nil {
		return fmt.Errorf("invalid scenario: %w", err)
	}

	partition := loopback.New(loopback.Config{Logger: logger})
	ports := synic.New(partition, synic.Config{})
	defer ports.Close()

	// Count fast-path deliveries by draining each OS event. Signals
	// coalesce, so this undercounts under load; it only shows the
	// fast path is live.
	var osEventCount atomic.Uint64

	bench := make([]*benchPort, 0, len(s.Ports))
	for _, spec := range s.Ports {
		bp := &benchPort{spec: spec}
		switch spec.Type {
		case "message":
			bp.message = &countingMessagePort{}
			handle, err := ports.AddMessagePort(spec.ConnectionID, hvdef.Vtl(spec.MinimumVtl), bp.message)
			if err != nil {
				return fmt.Errorf("register message port %#x: %w", spec.ConnectionID, err)
			}
			bp.handle = handle
		case "event":
			bp.event = &countingEventPort{}
			if spec.OSEvent {
				event := hv.NewNotifyEvent()
				bp.event.event = event
				go func() {
					for {
						if err := event.Wait(); err != nil {
							return
						}
						osEventCount.Add(1)
					}
				}()
			}
			handle, err := ports.AddEventPort(spec.ConnectionID, hvdef.Vtl(spec.MinimumVtl), bp.event)
			if err != nil {
				return fmt.Errorf("register event port %#x: %w", spec.ConnectionID, err)
			}
			bp.handle = handle
		}
		bench = append(bench, bp)
		defer bp.handle.Close()
		logger.Debug("registered port",
			"connectionID", spec.ConnectionID,
			"type", spec.Type,
			"minimumVTL", spec.MinimumVtl,
			"osEvent", spec.OSEvent)
	}

	payload := make([]byte, s.PayloadSize)
	vtl := hvdef.Vtl(s.Vtl)
	perWorker := s.Operations / s.Workers

	pb := progressbar.Default(int64(perWorker * s.Workers))
	defer pb.Close()

	logger.Info("starting dispatch",
		"workers", s.Workers,
		"operations", perWorker*s.Workers,
		"ports", len(bench),
		"vtl", vtl.String())

	start := time.Now()

	var g errgroup.Group
	for worker := 0; worker < s.Workers; worker++ {
		worker := worker
		g.Go(func() error {
			for i := 0; i < perWorker; i++ {
				bp := bench[(worker+i)%len(bench)]
				switch {
				case bp.message != nil:
					if err := ports.HandlePostMessage(vtl, bp.spec.ConnectionID, false, payload); err != nil {
						return fmt.Errorf("post message to %#x: %w", bp.spec.ConnectionID, err)
					}
				case bp.event != nil:
					// Try the hypervisor fast path first, the way a
					// real exit handler would.
					fired, err := partition.FireHostEvent(vtl, bp.spec.ConnectionID)
					if err != nil {
						return fmt.Errorf("fire host event for %#x: %w", bp.spec.ConnectionID, err)
					}
					if !fired {
						if err := ports.HandleSignalEvent(vtl, bp.spec.ConnectionID, 0); err != nil {
							return fmt.Errorf("signal event on %#x: %w", bp.spec.ConnectionID, err)
						}
					}
				}
				if i%1000 == 999 {
					pb.Add(1000)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	elapsed := time.Since(start)
	pb.Finish()

	var messages, events uint64
	for _, bp := range bench {
		if bp.message != nil {
			messages += bp.message.count.Load()
		}
		if bp.event != nil {
			events += bp.event.count.Load()
		}
	}

	logger.Info("dispatch complete",
		"elapsed", elapsed,
		"messages", messages,
		"events", events,
		"osEvents", osEventCount.Load(),
		"opsPerSec", fmt.Sprintf("%.0f", float64(perWorker*s.Workers)/elapsed.Seconds()))

	return nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "synicbench: %v\n", err)
		os.Exit(1)
	}
}
