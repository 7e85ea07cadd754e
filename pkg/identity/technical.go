package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/shirou/gopsutil/v4/host"
	psnet "github.com/shirou/gopsutil/v4/net"

	"github.com/glorpus-work/pkgconnect/internal/logger"
)

const hashPrefixLen = 16

// HardwareProbe reports the host facts the technical id is derived from.
type HardwareProbe interface {
	OSName(ctx context.Context) (string, error)
	HardwareAddrs(ctx context.Context) ([]string, error)
}

// SystemProbe reads host facts through gopsutil.
type SystemProbe struct{}

// OSName returns the operating system family, e.g. "linux" or "windows".
func (SystemProbe) OSName(ctx context.Context) (string, error) {
	info, err := host.InfoWithContext(ctx)
	if err != nil {
		return "", err
	}
	return info.OS, nil
}

// HardwareAddrs returns the MAC addresses of all network interfaces that have one.
func (SystemProbe) HardwareAddrs(ctx context.Context) ([]string, error) {
	ifaces, err := psnet.InterfacesWithContext(ctx)
	if err != nil {
		return nil, err
	}
	addrs := make([]string, 0, len(ifaces))
	for _, iface := range ifaces {
		if iface.HardwareAddr != "" {
			addrs = append(addrs, iface.HardwareAddr)
		}
	}
	return addrs, nil
}

// TechnicalID is the memoized fingerprint of an installation:
// <os>-<hash(install path)>-<hash(hardware addresses)>.
type TechnicalID struct {
	installPath string
	probe       HardwareProbe

	once  sync.Once
	value string
}

// NewTechnicalID creates a fingerprint for the installation at installPath.
// A nil probe uses SystemProbe.
func NewTechnicalID(installPath string, probe HardwareProbe) *TechnicalID {
	if probe == nil {
		probe = SystemProbe{}
	}
	return &TechnicalID{installPath: installPath, probe: probe}
}

// String computes the fingerprint on first use and returns the cached value afterwards.
func (t *TechnicalID) String() string {
	t.once.Do(func() {
		t.value = t.compute(context.Background())
	})
	return t.value
}

func (t *TechnicalID) compute(ctx context.Context) string {
	osName, err := t.probe.OSName(ctx)
	if err != nil || osName == "" {
		if err != nil {
			logger.Debug("Falling back to runtime OS name", logger.Fields{"error": err.Error()})
		}
		osName = runtime.GOOS
	}

	addrs, err := t.probe.HardwareAddrs(ctx)
	if err != nil {
		logger.Warn("Cannot read network hardware addresses", logger.Fields{"error": err.Error()})
		addrs = nil
	}
	sorted := append([]string(nil), addrs...)
	sort.Strings(sorted)

	return strings.ToLower(osName) + "-" + shortHash(t.installPath) + "-" + shortHash(strings.Join(sorted, ""))
}

func shortHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:hashPrefixLen]
}
