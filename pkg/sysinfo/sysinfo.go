// Package sysinfo describes the machine a bench ran on.
package sysinfo

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"
)

// Info contains system information
type Info struct {
	Timestamp time.Time     `json:"timestamp"`
	Host      HostInfo      `json:"host"`
	CPU       CPUInfo       `json:"cpu"`
	Memory    MemoryInfo    `json:"memory"`
	Disk      []DiskInfo    `json:"disk,omitempty"`
	Network   []NetworkInfo `json:"network,omitempty"`
	Process   ProcessInfo   `json:"process"`
	GoVersion string        `json:"go_version"`
}

// HostInfo contains host information
type HostInfo struct {
	Hostname        string `json:"hostname"`
	Uptime          uint64 `json:"uptime"`
	OS              string `json:"os"`
	Platform        string `json:"platform"`
	PlatformVersion string `json:"platform_version"`
	KernelVersion   string `json:"kernel_version"`
	Architecture    string `json:"architecture"`
}

// CPUInfo contains CPU information
type CPUInfo struct {
	PhysicalCores int       `json:"physical_cores"`
	LogicalCores  int       `json:"logical_cores"`
	ModelName     string    `json:"model_name"`
	Usage         []float64 `json:"usage_percent,omitempty"`
}

// MemoryInfo contains memory information
type MemoryInfo struct {
	Total       uint64  `json:"total"`
	Available   uint64  `json:"available"`
	Used        uint64  `json:"used"`
	UsedPercent float64 `json:"used_percent"`
}

// DiskInfo contains disk information
type DiskInfo struct {
	Path        string  `json:"path"`
	Fstype      string  `json:"fstype"`
	Total       uint64  `json:"total"`
	Free        uint64  `json:"free"`
	UsedPercent float64 `json:"used_percent"`
}

// NetworkInfo contains network interface counters
type NetworkInfo struct {
	Name      string `json:"name"`
	BytesSent uint64 `json:"bytes_sent"`
	BytesRecv uint64 `json:"bytes_recv"`
}

// ProcessInfo describes the bench process itself
type ProcessInfo struct {
	PID        int32   `json:"pid"`
	RSS        uint64  `json:"rss"`
	Threads    int32   `json:"threads"`
	CPUPercent float64 `json:"cpu_percent"`
	StartedAt  int64   `json:"started_at"` // unix milliseconds
}

// Options selects the slower parts of a collection
type Options struct {
	// CPUSample is how long to sample CPU usage; zero skips it
	CPUSample time.Duration
	Disks     bool
	Network   bool
}

// Collect gathers host, CPU and memory details. Probes that fail leave
// their fields zero.
func Collect(opts Options) Info {
	info := Info{
		Timestamp: time.Now(),
		GoVersion: runtime.Version(),
	}
	info.Host.Architecture = runtime.GOARCH
	info.Host.OS = runtime.GOOS

	if h, err := host.Info(); err == nil {
		info.Host.Hostname = h.Hostname
		info.Host.Uptime = h.Uptime
		info.Host.OS = h.OS
		info.Host.Platform = h.Platform
		info.Host.PlatformVersion = h.PlatformVersion
		info.Host.KernelVersion = h.KernelVersion
	}

	if n, err := cpu.Counts(false); err == nil {
		info.CPU.PhysicalCores = n
	}
	if n, err := cpu.Counts(true); err == nil {
		info.CPU.LogicalCores = n
	}
	if infos, err := cpu.Info(); err == nil && len(infos) > 0 {
		info.CPU.ModelName = strings.TrimSpace(infos[0].ModelName)
	}
	if opts.CPUSample > 0 {
		if usage, err := cpu.Percent(opts.CPUSample, true); err == nil {
			info.CPU.Usage = usage
		}
	}
	if info.CPU.LogicalCores == 0 {
		info.CPU.LogicalCores = runtime.NumCPU()
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		info.Memory = MemoryInfo{
			Total:       vm.Total,
			Available:   vm.Available,
			Used:        vm.Used,
			UsedPercent: vm.UsedPercent,
		}
	}

	info.Process = collectProcess()

	if opts.Disks {
		if partitions, err := disk.Partitions(false); err == nil {
			for _, p := range partitions {
				usage, err := disk.Usage(p.Mountpoint)
				if err != nil {
					continue
				}
				info.Disk = append(info.Disk, DiskInfo{
					Path:        p.Mountpoint,
					Fstype:      p.Fstype,
					Total:       usage.Total,
					Free:        usage.Free,
					UsedPercent: usage.UsedPercent,
				})
			}
		}
	}

	if opts.Network {
		if counters, err := net.IOCounters(true); err == nil {
			for _, c := range counters {
				if c.Name == "lo" || strings.HasPrefix(c.Name, "docker") {
					continue
				}
				info.Network = append(info.Network, NetworkInfo{
					Name:      c.Name,
					BytesSent: c.BytesSent,
					BytesRecv: c.BytesRecv,
				})
			}
		}
	}

	return info
}

func collectProcess() ProcessInfo {
	pid := int32(os.Getpid()) // #nosec G115 -- pids fit in int32
	info := ProcessInfo{PID: pid}

	p, err := process.NewProcess(pid)
	if err != nil {
		return info
	}
	if m, err := p.MemoryInfo(); err == nil {
		info.RSS = m.RSS
	}
	if n, err := p.NumThreads(); err == nil {
		info.Threads = n
	}
	if pct, err := p.CPUPercent(); err == nil {
		info.CPUPercent = pct
	}
	if t, err := p.CreateTime(); err == nil {
		info.StartedAt = t
	}
	return info
}

// FormatBytes renders a byte count with a binary unit
func FormatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
