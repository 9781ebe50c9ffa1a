package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validYAML() []byte {
	return []byte(`
project_code: demo
work_dir: /tmp/hailstorm
jmeter:
  version: "5.5"
master_slave_mode: true
clusters:
  - type: amazon_cloud
    access_key: AKIA
    secret_key: secret
    region: us-east-1
    instance_type: t3a.large
    max_threads_by_instance: 100
target_hosts:
  - host_name: db1.internal
    role_name: database
plans:
  - test_plan_name: checkout
    file_path: /plans/checkout.jmx
`)
}

func TestParseValidConfig(t *testing.T) {
	f, err := Parse(validYAML())
	require.NoError(t, err)
	assert.Equal(t, "demo", f.ProjectCode)
	assert.True(t, f.MasterSlaveMode)
	require.Len(t, f.Clusters, 1)
	assert.Equal(t, 22, f.Clusters[0].SSHPort)
	assert.Equal(t, "ubuntu", f.Clusters[0].UserName)
	require.Len(t, f.TargetHosts, 1)
	assert.Equal(t, 10_000_000_000, int(f.TargetHosts[0].SamplingInterval)) // 10s in ns
}

func TestParseRejectsBadProjectCode(t *testing.T) {
	doc := []byte(`
project_code: "bad code!"
jmeter:
  version: "5.5"
clusters:
  - type: data_center
    machines: ["10.0.0.1"]
`)
	_, err := Parse(doc)
	assert.Error(t, err)
}

func TestResolveJMeterVersionRejectsBelowFloor(t *testing.T) {
	_, err := ResolveJMeterVersion(JMeterConfig{Version: "2.5"})
	assert.Error(t, err)
}

func TestResolveJMeterVersionRejectsMalformed(t *testing.T) {
	_, err := ResolveJMeterVersion(JMeterConfig{Version: "v5"})
	assert.Error(t, err)
}

func TestResolveJMeterVersionFromInstallerURLWithFamilyPrefix(t *testing.T) {
	v, err := ResolveJMeterVersion(JMeterConfig{CustomInstallerURL: "https://example.com/apache-jmeter-5.6.2.tgz"})
	require.NoError(t, err)
	assert.Equal(t, "5.6.2", v)
}

func TestResolveJMeterVersionFromInstallerURLFallsBackToStem(t *testing.T) {
	v, err := ResolveJMeterVersion(JMeterConfig{CustomInstallerURL: "https://example.com/custom-build.tar.gz"})
	require.NoError(t, err)
	assert.Equal(t, "custom-build", v)
}

func TestResolveJMeterVersionRejectsBadInstallerExtension(t *testing.T) {
	_, err := ResolveJMeterVersion(JMeterConfig{CustomInstallerURL: "https://example.com/jmeter.zip"})
	assert.Error(t, err)
}

func TestResolveJMeterVersionRequiresOneInput(t *testing.T) {
	_, err := ResolveJMeterVersion(JMeterConfig{})
	assert.Error(t, err)
}

func TestValidateRejectsNonStandardSSHPortWithoutAMI(t *testing.T) {
	f := &File{
		JMeter: JMeterConfig{Version: "5.5"},
		Clusters: []ClusterConfig{{
			Type: "amazon_cloud", AccessKey: "a", SecretKey: "s", Region: "us-east-1",
			MaxThreadsByInstance: 10, SSHPort: 2222,
		}},
	}
	err := Validate(f)
	assert.Error(t, err)
}

func TestValidateAcceptsNonStandardSSHPortWithAMI(t *testing.T) {
	f := &File{
		JMeter: JMeterConfig{Version: "5.5"},
		Clusters: []ClusterConfig{{
			Type: "amazon_cloud", AccessKey: "a", SecretKey: "s", Region: "us-east-1",
			MaxThreadsByInstance: 10, SSHPort: 2222, AgentAMI: "ami-123",
		}},
	}
	assert.NoError(t, Validate(f))
}

func TestValidateRejectsEmptyDataCenterMachines(t *testing.T) {
	f := &File{
		JMeter:   JMeterConfig{Version: "5.5"},
		Clusters: []ClusterConfig{{Type: "data_center"}},
	}
	assert.Error(t, Validate(f))
}

func TestValidateRejectsUnknownClusterType(t *testing.T) {
	f := &File{
		JMeter:   JMeterConfig{Version: "5.5"},
		Clusters: []ClusterConfig{{Type: "bogus"}},
	}
	assert.Error(t, Validate(f))
}
