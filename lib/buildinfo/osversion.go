package buildinfo

import (
	"regexp"
	"strings"

	"github.com/shirou/gopsutil/v3/host"
)

// windowsBuild matches kernel versions like `10.0.19044 Build 19044`
var windowsBuild = regexp.MustCompile(`^([\d\.]+?\.)(\d+) Build (\d+)$`)

// GetOSVersion returns OS version, kernel and bitness
func GetOSVersion() (osVersion, osKernel string) {
	if platform, _, version, err := host.PlatformInformation(); err == nil && platform != "" {
		osVersion = platform
		if version != "" {
			osVersion += " " + version
		}
	}
	if version, err := host.KernelVersion(); err == nil && version != "" {
		osKernel = simplifyKernel(version)
		// Prevent duplication of output on Windows
		if strings.Contains(osVersion, version) {
			deduped := strings.TrimSpace(strings.Replace(osVersion, version, "", 1))
			if deduped != "" {
				osVersion = deduped
			}
		}
	}
	if arch, err := host.KernelArch(); err == nil && arch != "" {
		if strings.HasSuffix(arch, "64") && osVersion != "" {
			osVersion += " (64 bit)"
		}
		if osKernel != "" {
			osKernel += " (" + arch + ")"
		}
	}
	if osVersion == "" {
		osVersion = "unknown"
	}
	if osKernel == "" {
		osKernel = "unknown"
	}
	return
}

// simplifyKernel turns `RELEASE.BUILD Build BUILD` into `RELEASE.BUILD`
func simplifyKernel(kernel string) string {
	match := windowsBuild.FindStringSubmatch(kernel)
	if len(match) == 4 && match[2] == match[3] {
		return match[1] + match[2]
	}
	return kernel
}
