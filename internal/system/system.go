// Package system reports host status and drives desktop-level controls:
// screenshots, clipboard, screen lock, and volume.
package system

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/aide-agent/aide/internal/actions"
)

// Info is a point-in-time host snapshot served over the API.
type Info struct {
	Hostname    string  `json:"hostname"`
	OS          string  `json:"os"`
	Arch        string  `json:"arch"`
	CPUs        int     `json:"cpus"`
	LoadAvg     float64 `json:"load_avg"`
	MemTotalKB  uint64  `json:"mem_total_kb"`
	MemAvailKB  uint64  `json:"mem_available_kb"`
	DiskTotalMB uint64  `json:"disk_total_mb"`
	DiskFreeMB  uint64  `json:"disk_free_mb"`
	UptimeSec   uint64  `json:"uptime_sec"`
	GoVersion   string  `json:"go_version"`
	CollectedAt string  `json:"collected_at"`
}

// System holds desktop control state.
type System struct {
	workspace string
	logger    *slog.Logger
	// runOut executes a command and returns stdout.
	runOut func(ctx context.Context, stdin, name string, args ...string) (string, error)
}

func New(workspace string, logger *slog.Logger) *System {
	return &System{
		workspace: workspace,
		logger:    logger,
		runOut: func(ctx context.Context, stdin, name string, args ...string) (string, error) {
			cmd := exec.CommandContext(ctx, name, args...)
			if stdin != "" {
				cmd.Stdin = strings.NewReader(stdin)
			}
			out, err := cmd.Output()
			return string(out), err
		},
	}
}

// CollectInfo gathers a host snapshot. Fields whose source is
// unavailable (non-Linux /proc) are left zero rather than erroring.
func (s *System) CollectInfo() *Info {
	info := &Info{
		OS:          runtime.GOOS,
		Arch:        runtime.GOARCH,
		CPUs:        runtime.NumCPU(),
		GoVersion:   runtime.Version(),
		CollectedAt: time.Now().UTC().Format(time.RFC3339),
	}
	info.Hostname, _ = os.Hostname()

	if data, err := os.ReadFile("/proc/meminfo"); err == nil {
		info.MemTotalKB, info.MemAvailKB = parseMemInfo(string(data))
	}
	if data, err := os.ReadFile("/proc/loadavg"); err == nil {
		info.LoadAvg = parseLoadAvg(string(data))
	}
	if data, err := os.ReadFile("/proc/uptime"); err == nil {
		info.UptimeSec = parseUptime(string(data))
	}

	var stat syscall.Statfs_t
	if err := syscall.Statfs("/", &stat); err == nil {
		bsize := uint64(stat.Bsize)
		info.DiskTotalMB = stat.Blocks * bsize / (1 << 20)
		info.DiskFreeMB = stat.Bavail * bsize / (1 << 20)
	}

	return info
}

// parseMemInfo extracts MemTotal and MemAvailable (kB) from
// /proc/meminfo content.
func parseMemInfo(data string) (total, avail uint64) {
	for _, line := range strings.Split(data, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		switch fields[0] {
		case "MemTotal:":
			total, _ = strconv.ParseUint(fields[1], 10, 64)
		case "MemAvailable:":
			avail, _ = strconv.ParseUint(fields[1], 10, 64)
		}
	}
	return total, avail
}

// parseLoadAvg extracts the 1-minute load from /proc/loadavg content.
func parseLoadAvg(data string) float64 {
	fields := strings.Fields(data)
	if len(fields) == 0 {
		return 0
	}
	load, _ := strconv.ParseFloat(fields[0], 64)
	return load
}

// parseUptime extracts whole seconds from /proc/uptime content.
func parseUptime(data string) uint64 {
	fields := strings.Fields(data)
	if len(fields) == 0 {
		return 0
	}
	up, _ := strconv.ParseFloat(fields[0], 64)
	return uint64(up)
}

func (s *System) systemInfo(ctx context.Context, p actions.Params) (string, error) {
	info := s.CollectInfo()
	return fmt.Sprintf(
		"%s (%s/%s), %d CPUs, load %.2f, mem %d/%d MB free, disk %d/%d GB free, up %s",
		info.Hostname, info.OS, info.Arch, info.CPUs, info.LoadAvg,
		info.MemAvailKB/1024, info.MemTotalKB/1024,
		info.DiskFreeMB/1024, info.DiskTotalMB/1024,
		(time.Duration(info.UptimeSec) * time.Second).String(),
	), nil
}

func (s *System) takeScreenshot(ctx context.Context, p actions.Params) (string, error) {
	name := fmt.Sprintf("screenshot_%s.png", time.Now().Format("20060102_150405"))
	path := filepath.Join(s.workspace, name)

	var err error
	if runtime.GOOS == "darwin" {
		_, err = s.runOut(ctx, "", "screencapture", "-x", path)
	} else {
		_, err = s.runOut(ctx, "", "scrot", path)
	}
	if err != nil {
		return "", fmt.Errorf("screenshot: %w", err)
	}
	return "Screenshot saved to " + path, nil
}

func (s *System) clipboardRead(ctx context.Context, p actions.Params) (string, error) {
	var out string
	var err error
	if runtime.GOOS == "darwin" {
		out, err = s.runOut(ctx, "", "pbpaste")
	} else {
		out, err = s.runOut(ctx, "", "xclip", "-selection", "clipboard", "-o")
	}
	if err != nil {
		return "", fmt.Errorf("read clipboard: %w", err)
	}
	if strings.TrimSpace(out) == "" {
		return "Clipboard is empty.", nil
	}
	return out, nil
}

func (s *System) clipboardWrite(ctx context.Context, p actions.Params) (string, error) {
	text, err := p.String("text")
	if err != nil {
		return "", err
	}
	if runtime.GOOS == "darwin" {
		_, err = s.runOut(ctx, text, "pbcopy")
	} else {
		_, err = s.runOut(ctx, text, "xclip", "-selection", "clipboard")
	}
	if err != nil {
		return "", fmt.Errorf("write clipboard: %w", err)
	}
	return "Copied to clipboard.", nil
}

func (s *System) lockScreen(ctx context.Context, p actions.Params) (string, error) {
	var err error
	if runtime.GOOS == "darwin" {
		_, err = s.runOut(ctx, "", "pmset", "displaysleepnow")
	} else {
		_, err = s.runOut(ctx, "", "loginctl", "lock-session")
	}
	if err != nil {
		return "", fmt.Errorf("lock screen: %w", err)
	}
	return "Screen locked.", nil
}

func (s *System) setVolume(ctx context.Context, p actions.Params) (string, error) {
	level, err := p.Int("level")
	if err != nil {
		return "", err
	}
	if level < 0 || level > 100 {
		return "", fmt.Errorf("volume must be 0-100, got %d", level)
	}

	if runtime.GOOS == "darwin" {
		_, err = s.runOut(ctx, "", "osascript", "-e", fmt.Sprintf("set volume output volume %d", level))
	} else {
		_, err = s.runOut(ctx, "", "pactl", "set-sink-volume", "@DEFAULT_SINK@", fmt.Sprintf("%d%%", level))
	}
	if err != nil {
		return "", fmt.Errorf("set volume: %w", err)
	}
	return fmt.Sprintf("Volume set to %d%%.", level), nil
}

// Actions returns the system control action set.
func (s *System) Actions() []*actions.Action {
	return []*actions.Action{
		{Name: "system_info", Description: "Report CPU, memory, disk, and uptime", Handler: s.systemInfo},
		{Name: "take_screenshot", Description: "Capture the screen to the workspace", Handler: s.takeScreenshot},
		{Name: "clipboard_read", Description: "Read the current clipboard contents", Handler: s.clipboardRead},
		{Name: "clipboard_write", Description: "Copy text to the clipboard", Handler: s.clipboardWrite},
		{Name: "lock_screen", Description: "Lock the desktop session", Handler: s.lockScreen},
		{Name: "set_volume", Description: "Set the output volume (0-100)", Handler: s.setVolume},
	}
}
