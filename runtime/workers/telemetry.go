package workers

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/process"

	"chat-relay/contract"
)

// Telemetry periodically logs process health together with a snapshot
// of the relay load. The log stream is the whole metrics surface,
// nothing is exported beyond it.
type Telemetry struct {
	log            *slog.Logger
	metricInterval time.Duration
	stats          func() contract.RelayStats
}

func NewTelemetry(log *slog.Logger, metricInterval time.Duration, stats func() contract.RelayStats) *Telemetry {
	return &Telemetry{log: log, metricInterval: metricInterval, stats: stats}
}

var _ contract.Worker = (*Telemetry)(nil)

func (w *Telemetry) Run(ctx context.Context) error {
	w.log.Info("Starting telemetry worker",
		slog.Duration("interval", w.metricInterval))

	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	ticker := time.NewTicker(w.metricInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping telemetry worker")
			return nil
		case <-ticker.C:
			w.report(p)
		}
	}
}

func (w *Telemetry) report(p *process.Process) {
	rss, cpuPercent, status, err := selfStats(p)
	if err != nil {
		w.log.Error("Failed to collect process stats", slog.Any("error", err))
		return
	}

	stats := w.stats()
	w.log.Info("Relay telemetry",
		slog.Uint64("ram_bytes", rss),
		slog.Float64("cpu_percent", cpuPercent),
		slog.String("process_status", status),
		slog.Int("goroutines", runtime.NumGoroutine()),
		slog.Int("online_users", stats.OnlineUsers),
		slog.Int("connections", stats.Connections),
		slog.Int("rooms", stats.Rooms),
		slog.Int("subscriptions", stats.Subscriptions),
		slog.Int("queue_depth", stats.QueueDepth),
		slog.Int("queue_capacity", stats.QueueCapacity))
}

// selfStats retrieves technical metrics (memory, CPU and OS status)
// for the given process.
func selfStats(p *process.Process) (uint64, float64, string, error) {
	memInfo, err := p.MemoryInfo()
	if err != nil {
		return 0, 0, "", err
	}

	cpuPercent, err := p.CPUPercent()
	if err != nil {
		return 0, 0, "", err
	}

	status, err := p.Status()
	if err != nil {
		return 0, 0, "", err
	}

	return memInfo.RSS, cpuPercent, status, nil
}
