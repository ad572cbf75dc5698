package router

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/nous-labs/switchboard/internal/llm"
)

// Report headers. Every system report starts with one of these.
const (
	HeaderGPU         = "GPU Report"
	HeaderStatus      = "System Status"
	HeaderPerformance = "Performance Report"
	HeaderOverview    = "System Overview"
)

// SystemProfile is the static hardware description reported by the system
// handler. It comes from configuration, not from probing the host.
type SystemProfile struct {
	Host string
	GPU  string
	VRAM string
	RAM  string
}

// RuntimeStats are cheap in-process numbers for the performance report.
type RuntimeStats struct {
	GOOS       string
	GOARCH     string
	NumCPU     int
	Goroutines int
	HeapMB     float64
	SysMB      float64
}

// ReadRuntimeStats samples the current process.
func ReadRuntimeStats() RuntimeStats {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return RuntimeStats{
		GOOS:       runtime.GOOS,
		GOARCH:     runtime.GOARCH,
		NumCPU:     runtime.NumCPU(),
		Goroutines: runtime.NumGoroutine(),
		HeapMB:     float64(ms.HeapAlloc) / (1 << 20),
		SysMB:      float64(ms.Sys) / (1 << 20),
	}
}

// SystemConfig configures a SystemHandler.
type SystemConfig struct {
	Profile  SystemProfile
	Keywords Keywords
	// Liveness returns the cached backend liveness. Nil means unmonitored.
	Liveness func() llm.Liveness
	// Runtime defaults to ReadRuntimeStats.
	Runtime func() RuntimeStats
}

// SystemHandler reports workstation status. It never calls the completion
// backend or the network; backend liveness comes from a cached probe.
type SystemHandler struct {
	profile  SystemProfile
	keywords Keywords
	liveness func() llm.Liveness
	stats    func() RuntimeStats
}

// NewSystemHandler creates a system handler.
func NewSystemHandler(cfg SystemConfig) *SystemHandler {
	if cfg.Profile.Host == "" {
		cfg.Profile.Host, _ = os.Hostname()
	}
	if cfg.Profile.GPU == "" {
		cfg.Profile.GPU = "unknown"
	}
	if len(cfg.Keywords) == 0 {
		cfg.Keywords = DefaultSystemKeywords
	}
	if cfg.Runtime == nil {
		cfg.Runtime = ReadRuntimeStats
	}
	return &SystemHandler{
		profile:  cfg.Profile,
		keywords: cfg.Keywords,
		liveness: cfg.Liveness,
		stats:    cfg.Runtime,
	}
}

func (h *SystemHandler) Name() string        { return "system" }
func (h *SystemHandler) Kind() Kind          { return KindSystem }
func (h *SystemHandler) Keywords() Keywords  { return h.keywords }
func (h *SystemHandler) Description() string { return "Workstation status, hardware and performance reports" }

// Execute builds the report for the first matching sub-intent: gpu, then
// status or system, then performance or monitor, otherwise an overview.
func (h *SystemHandler) Execute(_ context.Context, task Task) (string, error) {
	lower := strings.ToLower(task.Text)
	switch {
	case strings.Contains(lower, "gpu"):
		return h.gpuReport(), nil
	case containsAny(lower, "status", "system"):
		return h.statusReport(), nil
	case containsAny(lower, "performance", "monitor"):
		return h.performanceReport(), nil
	default:
		return h.overview(), nil
	}
}

func (h *SystemHandler) gpuReport() string {
	var b strings.Builder
	b.WriteString(HeaderGPU + "\n")
	fmt.Fprintf(&b, "GPU: %s\n", h.profile.GPU)
	if h.profile.VRAM != "" {
		fmt.Fprintf(&b, "VRAM: %s\n", h.profile.VRAM)
	}
	fmt.Fprintf(&b, "Backend: %s", h.backendLine())
	return b.String()
}

func (h *SystemHandler) statusReport() string {
	s := h.stats()
	var b strings.Builder
	b.WriteString(HeaderStatus + "\n")
	fmt.Fprintf(&b, "Host: %s (%s/%s)\n", h.profile.Host, s.GOOS, s.GOARCH)
	fmt.Fprintf(&b, "CPUs: %d\n", s.NumCPU)
	if h.profile.RAM != "" {
		fmt.Fprintf(&b, "RAM: %s\n", h.profile.RAM)
	}
	fmt.Fprintf(&b, "GPU: %s\n", h.profile.GPU)
	fmt.Fprintf(&b, "Backend: %s", h.backendLine())
	return b.String()
}

func (h *SystemHandler) performanceReport() string {
	s := h.stats()
	var b strings.Builder
	b.WriteString(HeaderPerformance + "\n")
	fmt.Fprintf(&b, "CPUs: %d\n", s.NumCPU)
	fmt.Fprintf(&b, "Goroutines: %d\n", s.Goroutines)
	fmt.Fprintf(&b, "Heap: %.1f MB\n", s.HeapMB)
	fmt.Fprintf(&b, "Reserved: %.1f MB", s.SysMB)
	return b.String()
}

func (h *SystemHandler) overview() string {
	var b strings.Builder
	b.WriteString(HeaderOverview + "\n")
	fmt.Fprintf(&b, "Host: %s\n", h.profile.Host)
	fmt.Fprintf(&b, "GPU: %s\n", h.profile.GPU)
	fmt.Fprintf(&b, "Backend: %s\n", h.backendLine())
	b.WriteString("Ask about gpu, status or performance for details.")
	return b.String()
}

func (h *SystemHandler) backendLine() string {
	if h.liveness == nil {
		return "not monitored"
	}
	l := h.liveness()
	if !l.Checked() {
		return l.Backend + " not checked yet"
	}
	state := "unreachable"
	if l.Available {
		state = "reachable"
	}
	return fmt.Sprintf("%s %s (checked %s)", l.Backend, state, l.CheckedAt.Format(time.Kitchen))
}
