package sampler

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
)

// Sampler reads host CPU, memory and uptime counters. CPU utilisation is the
// busy share of the per-core tick deltas since the previous successful call,
// so the first call after start (or after a failed read) has no CPU figure.
type Sampler struct {
	logger *slog.Logger

	mu       sync.Mutex
	prev     []coreTicks
	prevTime time.Time
	model    string
	cores    int

	// Overridable readers for testing.
	now           func() time.Time
	cpuTimes      func(percpu bool) ([]cpu.TimesStat, error)
	cpuInfo       func() ([]cpu.InfoStat, error)
	virtualMemory func() (*mem.VirtualMemoryStat, error)
	hostInfo      func() (*host.InfoStat, error)
}

// New creates a Sampler backed by gopsutil. If logger is nil, a no-op logger
// is used.
func New(logger *slog.Logger) *Sampler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Sampler{
		logger:        logger,
		now:           time.Now,
		cpuTimes:      cpu.Times,
		cpuInfo:       cpu.Info,
		virtualMemory: mem.VirtualMemory,
		hostInfo:      host.Info,
	}
}

// Sample never fails: a platform error yields a Reading with every metric
// unavailable and drops the CPU baseline. The core count and model keep the
// values from the last successful read.
func (s *Sampler) Sample() Reading {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()

	r, err := s.read(now)
	if err != nil {
		s.logger.Warn("Host metrics unavailable", "error", err)
		s.prev = nil
		return Reading{Timestamp: now, CPU: CPU{Count: s.cores, Model: s.model}}
	}
	return r
}

func (s *Sampler) read(now time.Time) (Reading, error) {
	times, err := s.cpuTimes(true)
	if err != nil {
		return Reading{}, fmt.Errorf("reading cpu times: %w", err)
	}
	if len(times) == 0 {
		return Reading{}, fmt.Errorf("reading cpu times: no cores reported")
	}

	vm, err := s.virtualMemory()
	if err != nil {
		return Reading{}, fmt.Errorf("reading memory: %w", err)
	}

	hi, err := s.hostInfo()
	if err != nil {
		return Reading{}, fmt.Errorf("reading host info: %w", err)
	}

	s.cores = len(times)
	cores := make([]coreTicks, len(times))
	for i, t := range times {
		cores[i] = coreTicks{
			total: t.User + t.Nice + t.System + t.Idle + t.Iowait + t.Irq + t.Softirq + t.Steal,
			idle:  t.Idle,
		}
	}

	return Reading{
		Timestamp: now,
		CPU: CPU{
			Count:        len(times),
			Model:        s.cpuModel(),
			UsagePercent: s.cpuUsage(now, cores),
		},
		Memory: memoryFrom(vm),
		System: systemFrom(hi),
	}, nil
}

// cpuUsage computes utilisation against the stored baseline. A call with no
// elapsed wall time leaves the baseline untouched; every other call replaces
// it with cores.
func (s *Sampler) cpuUsage(now time.Time, cores []coreTicks) *float64 {
	if s.prev == nil || len(s.prev) != len(cores) {
		s.prev = cores
		s.prevTime = now
		return nil
	}
	if !now.After(s.prevTime) {
		return nil
	}

	var tickDelta, idleDelta float64
	for i, c := range cores {
		tickDelta += c.total - s.prev[i].total
		idleDelta += c.idle - s.prev[i].idle
	}
	s.prev = cores
	s.prevTime = now

	if tickDelta <= 0 {
		return nil
	}
	usage := round2(clamp((tickDelta-idleDelta)/tickDelta*100, 0, 100))
	return &usage
}

func (s *Sampler) cpuModel() string {
	if s.model != "" {
		return s.model
	}
	infos, err := s.cpuInfo()
	if err != nil || len(infos) == 0 {
		s.logger.Debug("CPU model unavailable", "error", err)
		return "unknown"
	}
	s.model = infos[0].ModelName
	return s.model
}

func memoryFrom(vm *mem.VirtualMemoryStat) *Memory {
	free := vm.Available
	if free > vm.Total {
		free = vm.Total
	}
	used := vm.Total - free

	var pct float64
	if vm.Total > 0 {
		pct = round2(float64(used) / float64(vm.Total) * 100)
	}
	return &Memory{
		Total:        vm.Total,
		Used:         used,
		Free:         free,
		UsagePercent: pct,
	}
}

func systemFrom(hi *host.InfoStat) *System {
	platform := hi.OS
	if platform == "" {
		platform = runtime.GOOS
	}
	arch := hi.KernelArch
	if arch == "" {
		arch = runtime.GOARCH
	}
	return &System{
		Uptime:   hi.Uptime,
		Hostname: hi.Hostname,
		Platform: platform,
		Arch:     arch,
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
