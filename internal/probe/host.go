package probe

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// GPUInfo is one GPU reported by the host
type GPUInfo struct {
	Name   string `json:"name"`
	Type   string `json:"type"`
	Memory string `json:"memory"`
}

// HostReport is the payload of /api/gpu-info
type HostReport struct {
	GPUs  []GPUInfo `json:"gpus"`
	RAMGB *int      `json:"ramGB"`
}

// Runner executes an external command and returns its stdout
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// Prober collects host hardware information
type Prober struct {
	run         Runner
	memInfoPath string
	timeout     time.Duration
	logger      *zap.Logger
}

// ProberOption configures a Prober
type ProberOption func(*Prober)

// WithRunner replaces the command runner
func WithRunner(r Runner) ProberOption {
	return func(p *Prober) { p.run = r }
}

// WithMemInfoPath replaces the /proc/meminfo path
func WithMemInfoPath(path string) ProberOption {
	return func(p *Prober) { p.memInfoPath = path }
}

// NewProber creates a host prober
func NewProber(logger *zap.Logger, opts ...ProberOption) *Prober {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Prober{
		run:         execRunner,
		memInfoPath: "/proc/meminfo",
		timeout:     5 * time.Second,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Host reports GPUs and installed RAM. Failures are logged and leave the
// corresponding field empty.
func (p *Prober) Host(ctx context.Context) *HostReport {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	report := &HostReport{GPUs: []GPUInfo{}}
	var g errgroup.Group

	g.Go(func() error {
		gpus, err := p.gpus(ctx)
		if err != nil {
			p.logger.Debug("gpu detection failed", zap.Error(err))
			return nil
		}
		report.GPUs = gpus
		return nil
	})
	g.Go(func() error {
		ram, err := p.ramGB()
		if err != nil {
			p.logger.Debug("memory detection failed", zap.Error(err))
			return nil
		}
		report.RAMGB = &ram
		return nil
	})

	_ = g.Wait()
	return report
}

// Adapter derives an adapter description from the first reported GPU
func (p *Prober) Adapter(ctx context.Context) Adapter {
	report := p.Host(ctx)
	return AdapterFromReport(report)
}

// AdapterFromReport maps the first GPU of a report onto an Adapter. NVIDIA
// GPUs are assumed to support half precision; the buffer limit is the
// device memory.
func AdapterFromReport(report *HostReport) Adapter {
	if report == nil || len(report.GPUs) == 0 {
		return Adapter{}
	}
	gpu := report.GPUs[0]
	a := Adapter{Available: true, Name: gpu.Name, MaxBufferSize: parseMemory(gpu.Memory)}
	if gpu.Type == "NVIDIA" {
		a.Features = []string{FeatureShaderF16}
	}
	return a
}

func (p *Prober) gpus(ctx context.Context) ([]GPUInfo, error) {
	out, err := p.run(ctx, "nvidia-smi", "--query-gpu=name,memory.total", "--format=csv,noheader")
	if err != nil {
		return nil, fmt.Errorf("running nvidia-smi: %w", err)
	}
	return parseNvidiaSMI(string(out)), nil
}

func parseNvidiaSMI(out string) []GPUInfo {
	gpus := []GPUInfo{}
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		parts := strings.Split(line, ",")
		name := strings.TrimSpace(parts[0])
		if name == "" {
			continue
		}
		memory := "Unknown"
		if len(parts) > 1 {
			memory = strings.TrimSpace(parts[1])
		}
		gpus = append(gpus, GPUInfo{Name: name, Type: "NVIDIA", Memory: memory})
	}
	return gpus
}

// parseMemory converts "8192 MiB" style values to bytes, 0 when unknown
func parseMemory(s string) int64 {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return 0
	}
	n, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0
	}
	unit := "MiB"
	if len(fields) > 1 {
		unit = fields[1]
	}
	switch strings.ToLower(unit) {
	case "kib", "kb":
		return int64(n * (1 << 10))
	case "gib", "gb":
		return int64(n * (1 << 30))
	default:
		return int64(n * (1 << 20))
	}
}

func (p *Prober) ramGB() (int, error) {
	f, err := os.Open(p.memInfoPath)
	if err != nil {
		return 0, fmt.Errorf("opening meminfo: %w", err)
	}
	defer f.Close()

	kb, err := parseMemTotal(f)
	if err != nil {
		return 0, err
	}
	return int(math.Round(float64(kb) * 1024 / (1 << 30))), nil
}

// parseMemTotal returns MemTotal in kB
func parseMemTotal(r io.Reader) (int64, error) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) >= 2 && fields[0] == "MemTotal:" {
			return strconv.ParseInt(fields[1], 10, 64)
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("reading meminfo: %w", err)
	}
	return 0, fmt.Errorf("MemTotal not found")
}
