package metrics

import (
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// SystemCollector periodically samples CPU, memory and disk usage of the
// machine the recording runs on.
type SystemCollector struct {
	cpuUsagePercent  prometheus.Gauge
	memUsagePercent  prometheus.Gauge
	diskUsagePercent prometheus.Gauge
	diskFreeBytes    prometheus.Gauge
	diskPath         string
	interval         time.Duration
	stopChan         chan struct{}
	stopOnce         sync.Once
	wg               sync.WaitGroup
	logger           *slog.Logger
}

// NewSystemCollector creates a collector registered on reg. diskPath should be
// the directory the container is written to.
func NewSystemCollector(reg prometheus.Registerer, diskPath string, interval time.Duration, logger *slog.Logger) *SystemCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	f := promauto.With(reg)
	return &SystemCollector{
		cpuUsagePercent: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "system_cpu_usage_percent", Help: "Host CPU usage",
		}),
		memUsagePercent: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "system_mem_usage_percent", Help: "Host memory usage",
		}),
		diskUsagePercent: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "system_disk_usage_percent", Help: "Usage of the disk holding the output",
		}),
		diskFreeBytes: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "system_disk_free_bytes", Help: "Free bytes on the disk holding the output",
		}),
		diskPath: diskPath,
		interval: interval,
		stopChan: make(chan struct{}),
		logger:   logger.With("component", "SystemCollector"),
	}
}

// Start begins the background collection loop.
func (sc *SystemCollector) Start() {
	sc.logger.Info("Starting system metrics collector", "interval", sc.interval)
	sc.wg.Add(1)
	go sc.collectLoop()
}

// Stop terminates the collection loop and waits for it to finish.
func (sc *SystemCollector) Stop() {
	sc.stopOnce.Do(func() {
		sc.logger.Info("Stopping system metrics collector")
		close(sc.stopChan)
	})
	sc.wg.Wait()
}

// Collect takes one sample of every gauge.
func (sc *SystemCollector) Collect() {
	// cpu.Percent with a zero interval compares against the previous call.
	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		sc.cpuUsagePercent.Set(pct[0])
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		sc.memUsagePercent.Set(vm.UsedPercent)
	}
	if du, err := disk.Usage(sc.diskPath); err == nil {
		sc.diskUsagePercent.Set(du.UsedPercent)
		sc.diskFreeBytes.Set(float64(du.Free))
	} else {
		sc.logger.Debug("disk usage unavailable", "path", sc.diskPath, "error", err)
	}
}

func (sc *SystemCollector) collectLoop() {
	defer sc.wg.Done()
	ticker := time.NewTicker(sc.interval)
	defer ticker.Stop()

	sc.Collect()
	for {
		select {
		case <-ticker.C:
			sc.Collect()
		case <-sc.stopChan:
			return
		}
	}
}
