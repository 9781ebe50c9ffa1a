package config

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/hailstorm-run/hailstorm/internal/herrors"
)

var jmeterVersionRE = regexp.MustCompile(`^\d+\.\d+(\.\d+)?$`)

// installerVersionRE extracts <ver> from "<family>-jmeter-<ver>" filename
// stems (spec §6: "version extracted from filename as
// `^<family>-jmeter-(<ver>)` else the stem").
var installerVersionRE = regexp.MustCompile(`^[^-]+-jmeter-(.+)$`)

var projectCodeRE = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// Validate checks f against spec §6's configuration-input rules and §8's
// boundary cases, returning a herrors.Configuration on the first failure.
func Validate(f *File) error {
	if f.ProjectCode != "" && !projectCodeRE.MatchString(f.ProjectCode) {
		return herrors.Configuration(fmt.Sprintf("project_code %q must match [A-Za-z0-9_]+", f.ProjectCode), nil)
	}

	if _, err := ResolveJMeterVersion(f.JMeter); err != nil {
		return err
	}

	for i, c := range f.Clusters {
		if err := validateCluster(i, c); err != nil {
			return err
		}
	}

	for i, t := range f.TargetHosts {
		if t.HostName == "" {
			return herrors.Configuration(fmt.Sprintf("target_hosts[%d]: host_name is required", i), nil)
		}
	}

	return nil
}

func validateCluster(i int, c ClusterConfig) error {
	switch c.Type {
	case "amazon_cloud":
		if c.AccessKey == "" || c.SecretKey == "" {
			return herrors.Configuration(fmt.Sprintf("clusters[%d]: access_key and secret_key are required for amazon_cloud", i), nil)
		}
		if c.Region == "" {
			return herrors.Configuration(fmt.Sprintf("clusters[%d]: region is required for amazon_cloud", i), nil)
		}
		if c.MaxThreadsByInstance <= 0 {
			return herrors.Configuration(fmt.Sprintf("clusters[%d]: max_threads_by_instance must be > 0", i), nil)
		}
		// Non-standard SSH port + no agent_ami => validation error (spec §8
		// boundary behaviour): a custom port implies a custom AMI baked with
		// the sshd listening on it, since the default AMI only exposes 22.
		if c.SSHPort != 22 && c.AgentAMI == "" {
			return herrors.Configuration(fmt.Sprintf("clusters[%d]: agent_ami is required when ssh_port (%d) is non-standard", i, c.SSHPort), nil)
		}
	case "data_center":
		if len(c.Machines) == 0 {
			return herrors.Configuration(fmt.Sprintf("clusters[%d]: data_center requires at least one machine", i), nil)
		}
	default:
		return herrors.Configuration(fmt.Sprintf("clusters[%d]: unknown cluster type %q (want amazon_cloud or data_center)", i, c.Type), nil)
	}
	return nil
}

// ResolveJMeterVersion implements spec §6's `jmeter.version` /
// `jmeter.custom_installer_url` resolution: exactly one input must be
// present and valid, and the effective version is returned either way.
func ResolveJMeterVersion(j JMeterConfig) (string, error) {
	switch {
	case j.Version != "":
		if !jmeterVersionRE.MatchString(j.Version) {
			return "", herrors.Configuration(fmt.Sprintf("jmeter.version %q must match \\d+.\\d+(.\\d+)?", j.Version), nil)
		}
		if !atLeast(j.Version, "2.6") {
			return "", herrors.Configuration(fmt.Sprintf("jmeter.version %q must be >= 2.6", j.Version), nil)
		}
		return j.Version, nil

	case j.CustomInstallerURL != "":
		url := j.CustomInstallerURL
		if !strings.HasSuffix(url, ".tgz") && !strings.HasSuffix(url, ".tar.gz") {
			return "", herrors.Configuration(fmt.Sprintf("jmeter.custom_installer_url %q must end in .tgz or .tar.gz", url), nil)
		}
		return versionFromInstallerURL(url), nil

	default:
		return "", herrors.Configuration("jmeter.version or jmeter.custom_installer_url is required", nil)
	}
}

// versionFromInstallerURL extracts the basename stem and applies
// installerVersionRE, falling back to the stem itself.
func versionFromInstallerURL(url string) string {
	base := url
	if idx := strings.LastIndexByte(base, '/'); idx >= 0 {
		base = base[idx+1:]
	}
	stem := strings.TrimSuffix(strings.TrimSuffix(base, ".tar.gz"), ".tgz")
	if m := installerVersionRE.FindStringSubmatch(stem); m != nil {
		return m[1]
	}
	return stem
}

// atLeast compares two "major.minor[.patch]" version strings numerically,
// field by field, treating a missing field as 0.
func atLeast(version, floor string) bool {
	v := parseVersionParts(version)
	f := parseVersionParts(floor)
	for i := 0; i < 3; i++ {
		if v[i] != f[i] {
			return v[i] > f[i]
		}
	}
	return true
}

func parseVersionParts(s string) [3]int {
	var out [3]int
	parts := strings.SplitN(s, ".", 3)
	for i, p := range parts {
		if i >= 3 {
			break
		}
		n, _ := strconv.Atoi(p)
		out[i] = n
	}
	return out
}
