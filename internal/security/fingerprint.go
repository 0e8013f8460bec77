// Package security derives the device fingerprint licenses are bound to.
package security

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"licensegate/internal/infrastructure"
)

// DefaultCacheDuration is how long a generated fingerprint is reused
const DefaultCacheDuration = time.Hour

// DeviceFingerprint represents device identification information
type DeviceFingerprint struct {
	Fingerprint string    `json:"fingerprint"`
	Hostname    string    `json:"hostname"`
	MACAddress  string    `json:"mac_address"`
	CPUID       string    `json:"cpu_id"`
	OS          string    `json:"os"`
	Platform    string    `json:"platform"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Probe reads the hardware factors of the current machine
type Probe interface {
	MACAddress() (string, error)
	Hostname() (string, error)
	CPUID() (string, error)
}

// FingerprintManager generates the device fingerprint and caches it
type FingerprintManager struct {
	probe         Probe
	clock         infrastructure.Clock
	logger        *slog.Logger
	cacheDuration time.Duration

	group       singleflight.Group
	mu          sync.RWMutex
	cache       *DeviceFingerprint
	cacheExpiry time.Time
}

// Option configures a FingerprintManager
type Option func(*FingerprintManager)

// WithProbe replaces the hardware probe
func WithProbe(p Probe) Option {
	return func(fm *FingerprintManager) { fm.probe = p }
}

// WithClock sets the clock used for cache expiry
func WithClock(c infrastructure.Clock) Option {
	return func(fm *FingerprintManager) { fm.clock = c }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(fm *FingerprintManager) { fm.logger = l }
}

// WithCacheDuration overrides DefaultCacheDuration
func WithCacheDuration(d time.Duration) Option {
	return func(fm *FingerprintManager) { fm.cacheDuration = d }
}

// NewFingerprintManager creates a new fingerprint manager with caching
func NewFingerprintManager(opts ...Option) *FingerprintManager {
	fm := &FingerprintManager{
		probe:         SystemProbe{},
		cacheDuration: DefaultCacheDuration,
	}
	for _, opt := range opts {
		opt(fm)
	}
	fm.clock = infrastructure.OrSystem(fm.clock)
	if fm.logger == nil {
		fm.logger = slog.Default()
	}
	fm.logger = fm.logger.With(slog.String("component", "fingerprint"))
	return fm
}

// GenerateFingerprint returns the SHA-256 over the MAC address, hostname, CPU
// id, OS and architecture. A factor that cannot be read is replaced by a fixed
// placeholder so the result stays stable on that machine.
func (fm *FingerprintManager) GenerateFingerprint() (*DeviceFingerprint, error) {
	now := fm.clock.Now()
	fm.mu.RLock()
	if fm.cache != nil && now.Before(fm.cacheExpiry) {
		cached := *fm.cache
		fm.mu.RUnlock()
		return &cached, nil
	}
	fm.mu.RUnlock()

	v, err, _ := fm.group.Do("generate", func() (interface{}, error) {
		return fm.generate(), nil
	})
	if err != nil {
		return nil, err
	}
	df := *v.(*DeviceFingerprint)
	return &df, nil
}

func (fm *FingerprintManager) generate() *DeviceFingerprint {
	start := time.Now()

	macAddr := fm.factor("mac_address", "unknown-mac", fm.probe.MACAddress)
	hostname := fm.factor("hostname", "unknown-host", fm.probe.Hostname)
	cpuID := fm.factor("cpu_id", "unknown-cpu", fm.probe.CPUID)

	factors := []string{macAddr, hostname, cpuID, runtime.GOOS, runtime.GOARCH}
	hash := sha256.Sum256([]byte(strings.Join(factors, "|")))

	now := fm.clock.Now()
	df := &DeviceFingerprint{
		Fingerprint: hex.EncodeToString(hash[:]),
		Hostname:    hostname,
		MACAddress:  macAddr,
		CPUID:       cpuID,
		OS:          runtime.GOOS,
		Platform:    runtime.GOARCH,
		GeneratedAt: now,
	}

	fm.mu.Lock()
	fm.cache = df
	fm.cacheExpiry = now.Add(fm.cacheDuration)
	fm.mu.Unlock()

	fm.logger.Info("device fingerprint generated",
		slog.String("fingerprint", df.Fingerprint[:12]),
		slog.String("os", df.OS),
		slog.String("platform", df.Platform),
		slog.Duration("generation_time", time.Since(start)))
	return df
}

func (fm *FingerprintManager) factor(name, fallback string, read func() (string, error)) string {
	v, err := read()
	if err != nil || v == "" {
		attrs := []any{slog.String("factor", name)}
		if err != nil {
			attrs = append(attrs, slog.String("error", err.Error()))
		}
		fm.logger.Warn("fingerprint factor unavailable, using fallback", attrs...)
		return fallback
	}
	return v
}

// Fingerprint returns only the hash; generation never fails
func (fm *FingerprintManager) Fingerprint() string {
	df, err := fm.GenerateFingerprint()
	if err != nil {
		return ""
	}
	return df.Fingerprint
}

// ValidateFingerprint compares the current device fingerprint with stored
func (fm *FingerprintManager) ValidateFingerprint(stored string) (bool, error) {
	current, err := fm.GenerateFingerprint()
	if err != nil {
		return false, fmt.Errorf("failed to generate current fingerprint: %w", err)
	}
	return current.Fingerprint == stored, nil
}

// ClearCache forces the next call to regenerate
func (fm *FingerprintManager) ClearCache() {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	fm.cache = nil
	fm.cacheExpiry = time.Time{}
}

// SystemProbe reads factors from the running machine
type SystemProbe struct{}

// MACAddress prefers the first up, non-loopback interface and falls back to
// any interface with a hardware address.
func (SystemProbe) MACAddress() (string, error) {
	interfaces, err := net.Interfaces()
	if err != nil {
		return "", fmt.Errorf("failed to get network interfaces: %w", err)
	}
	if mac := firstMAC(interfaces, true); mac != "" {
		return mac, nil
	}
	if mac := firstMAC(interfaces, false); mac != "" {
		return mac, nil
	}
	return "", errors.New("no valid MAC address found")
}

func firstMAC(interfaces []net.Interface, upOnly bool) string {
	for _, iface := range interfaces {
		if upOnly && (iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0) {
			continue
		}
		if len(iface.HardwareAddr) == 0 {
			continue
		}
		if mac := iface.HardwareAddr.String(); mac != "00:00:00:00:00:00" {
			return mac
		}
	}
	return ""
}

// Hostname returns the lowercased machine hostname
func (SystemProbe) Hostname() (string, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return "", fmt.Errorf("failed to get hostname: %w", err)
	}
	hostname = strings.ToLower(strings.TrimSpace(hostname))
	if hostname == "" {
		return "", errors.New("hostname is empty")
	}
	return hostname, nil
}

// CPUID returns a short hash of the OS-specific processor description
func (SystemProbe) CPUID() (string, error) {
	var raw string
	switch runtime.GOOS {
	case "windows":
		raw = os.Getenv("PROCESSOR_IDENTIFIER")
		if raw == "" {
			raw = "windows-" + runtime.GOARCH + "-" + os.Getenv("PROCESSOR_ARCHITECTURE")
		}
	case "linux":
		raw = linuxCPUModel()
		if raw == "" {
			raw = "linux-" + runtime.GOARCH
		}
	case "darwin":
		raw = "darwin-" + runtime.GOARCH
		if hostType := os.Getenv("HOSTTYPE"); hostType != "" {
			raw += "-" + hostType
		}
	default:
		raw = runtime.GOOS + "-" + runtime.GOARCH
	}
	return shortHash(raw), nil
}

func linuxCPUModel() string {
	data, err := os.ReadFile("/proc/cpuinfo")
	if err != nil {
		return ""
	}
	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(line, "model name") || strings.HasPrefix(line, "cpu family") {
			return strings.TrimSpace(line)
		}
	}
	return ""
}

func shortHash(s string) string {
	hash := sha256.Sum256([]byte(s))
	return hex.EncodeToString(hash[:8])
}
