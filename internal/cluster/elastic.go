package cluster

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"go.uber.org/zap"

	"github.com/hailstorm-run/hailstorm/internal/herrors"
	"github.com/hailstorm-run/hailstorm/internal/remoteexec"
	"github.com/hailstorm-run/hailstorm/internal/retry"
	"github.com/hailstorm-run/hailstorm/internal/store"
)

const ec2APITimeout = 2 * time.Minute

// baseAMIByRegion is the per-region base-AMI map builder instances launch
// from before JMeter is provisioned onto them (spec §4.2 AMI resolution).
var baseAMIByRegion = map[string]string{
	"us-east-1": "ami-0c101f26f147fa7fd",
	"us-west-2": "ami-0efcece6bed30fd98",
	"eu-west-1": "ami-0694d931cee176e7d",
}

// Elastic is the AWS-backed Backend (spec §4.2), reconciling security
// group, key pair, AMI and availability zone, then sizing fleets via
// RequiredAgentCount/RoundOffMaxThreadsPerAgent.
type Elastic struct {
	Project *store.Project
	Cloud   *store.AmazonCloud

	st     *store.Store
	client *ec2.Client
	exec   remoteexec.Executor
	log    *zap.SugaredLogger

	jmeterVersion    string
	customInstaller  string // installer URL, if custom
}

// NewElastic builds an Elastic backend bound to one project's AmazonCloud
// row. client is the already-configured EC2 API client (region/credentials
// resolved by the caller via aws-sdk-go-v2/config, per SPEC_FULL.md §A).
func NewElastic(st *store.Store, project *store.Project, cloud *store.AmazonCloud, client *ec2.Client, exec remoteexec.Executor, log *zap.SugaredLogger, jmeterVersion, customInstaller string) *Elastic {
	return &Elastic{
		Project: project, Cloud: cloud, st: st, client: client, exec: exec, log: log,
		jmeterVersion: jmeterVersion, customInstaller: customInstaller,
	}
}

// Setup reconciles the security group, key pair, availability zone and AMI
// (spec §4.2 operation 1). Holds no external lock itself — the project
// coordinator serializes setup() per project.
func (e *Elastic) Setup(ctx context.Context) error {
	if err := e.ensureSecurityGroup(ctx); err != nil {
		return herrors.Setup("reconcile security group", err)
	}
	if err := e.ensureKeyPair(ctx); err != nil {
		return herrors.Setup("reconcile key pair", err)
	}
	if e.Cloud.Zone == "" {
		zone, err := e.pickAvailabilityZone(ctx)
		if err != nil {
			return herrors.Setup("pick availability zone", err)
		}
		e.Cloud.Zone = zone
		if err := e.st.UpdateAmazonCloud(e.Cloud); err != nil {
			return err
		}
	}
	if err := e.ensureAMI(ctx); err != nil {
		return herrors.Setup("resolve agent AMI", err)
	}
	return nil
}

// RequiredAgentCount implements Backend.
func (e *Elastic) RequiredAgentCount(plan Plan) (int, error) {
	return RequiredAgentCount(plan.NumThreads, e.MaxThreadsPerAgent()), nil
}

// MaxThreadsPerAgent implements Backend: explicit cluster value if set,
// otherwise derived from instance type, always rounded per spec invariant 5.
func (e *Elastic) MaxThreadsPerAgent() int {
	base := e.Cloud.MaxThreadsByInstance
	if base <= 0 {
		base = DefaultMaxThreadsPerAgent(e.Cloud.InstanceType)
	}
	return RoundOffMaxThreadsPerAgent(base)
}

// Release terminates agents this backend launched. AMIs are kept (spec
// §4.4 terminate(): "Releases backends (agents terminated, AMIs kept)").
func (e *Elastic) Release(ctx context.Context, agents []store.LoadAgent) error {
	var instanceIDs []string
	for _, a := range agents {
		if a.Identifier != "" {
			instanceIDs = append(instanceIDs, a.Identifier)
		}
	}
	if len(instanceIDs) == 0 {
		return nil
	}
	runner := retry.New(retry.HostPolicy())
	return runner.Do(ctx, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, ec2APITimeout)
		defer cancel()
		_, err := e.client.TerminateInstances(ctx, &ec2.TerminateInstancesInput{InstanceIds: instanceIDs})
		if err != nil {
			return herrors.TransientHost("terminate agent instances", err)
		}
		return nil
	})
}

// ProvisionHost launches one agent instance from the resolved AgentAMI and
// waits until it exists, has a public IP, and its SSH port is reachable
// (spec §4.2.1 readiness).
func (e *Elastic) ProvisionHost(ctx context.Context) (remoteexec.Host, string, error) {
	if e.Cloud.AgentAMI == "" {
		return remoteexec.Host{}, "", herrors.Configuration("agent AMI not resolved; call Setup first", nil)
	}

	runCtx, cancel := context.WithTimeout(ctx, ec2APITimeout)
	out, err := e.client.RunInstances(runCtx, &ec2.RunInstancesInput{
		ImageId:          aws.String(e.Cloud.AgentAMI),
		InstanceType:     ec2types.InstanceType(e.Cloud.InstanceType),
		MinCount:         aws.Int32(1),
		MaxCount:         aws.Int32(1),
		KeyName:          aws.String(fmt.Sprintf("hailstorm-%s", e.Project.Code)),
		SecurityGroupIds: []string{e.Cloud.SecurityGroup},
		Placement:        &ec2types.Placement{AvailabilityZone: aws.String(e.Cloud.Zone)},
		TagSpecifications: []ec2types.TagSpecification{{
			ResourceType: ec2types.ResourceTypeInstance,
			Tags:         []ec2types.Tag{{Key: aws.String("Name"), Value: aws.String(fmt.Sprintf("hailstorm-agent-%s", e.Project.Code))}},
		}},
	})
	cancel()
	if err != nil {
		return remoteexec.Host{}, "", fmt.Errorf("launch agent instance: %w", err)
	}
	instanceID := aws.ToString(out.Instances[0].InstanceId)

	var host remoteexec.Host
	err = retry.PollUntil(ctx, fmt.Sprintf("agent instance %s has a reachable public IP", instanceID), 5*time.Minute, 5*time.Second, func(ctx context.Context) (bool, error) {
		h, hostErr := e.HostFor(instanceID)
		if hostErr != nil || h.Address == "" {
			return false, nil
		}
		if connErr := e.exec.EnsureConnectivity(ctx, h, 10*time.Second); connErr != nil {
			return false, nil
		}
		host = h
		return true, nil
	})
	if err != nil {
		return remoteexec.Host{}, "", err
	}
	return host, instanceID, nil
}

// HostFor resolves connectivity info for an already-launched instance.
func (e *Elastic) HostFor(identifier string) (remoteexec.Host, error) {
	out, err := e.client.DescribeInstances(context.Background(), &ec2.DescribeInstancesInput{InstanceIds: []string{identifier}})
	if err != nil || len(out.Reservations) == 0 || len(out.Reservations[0].Instances) == 0 {
		return remoteexec.Host{}, fmt.Errorf("describe agent instance %s: %w", identifier, err)
	}
	inst := out.Reservations[0].Instances[0]
	user := e.Cloud.UserName
	if user == "" {
		user = "ubuntu"
	}
	return remoteexec.Host{
		Address:     aws.ToString(inst.PublicIpAddress),
		Port:        e.Cloud.SSHPort,
		User:        user,
		SSHIdentity: e.Cloud.SSHIdentity,
	}, nil
}

// StartAgentHost restarts a stopped instance. Idempotent: an already
// running instance is left alone.
func (e *Elastic) StartAgentHost(ctx context.Context, identifier string) error {
	ctx, cancel := context.WithTimeout(ctx, ec2APITimeout)
	defer cancel()
	_, err := e.client.StartInstances(ctx, &ec2.StartInstancesInput{InstanceIds: []string{identifier}})
	if err != nil && !isAlreadyInState(err) && !isNotFound(err) {
		return fmt.Errorf("start agent instance %s: %w", identifier, err)
	}
	return nil
}

// StopAgentHost stops (but does not terminate) an instance.
func (e *Elastic) StopAgentHost(ctx context.Context, identifier string) error {
	ctx, cancel := context.WithTimeout(ctx, ec2APITimeout)
	defer cancel()
	_, err := e.client.StopInstances(ctx, &ec2.StopInstancesInput{InstanceIds: []string{identifier}})
	if err != nil && !isAlreadyInState(err) && !isNotFound(err) {
		return fmt.Errorf("stop agent instance %s: %w", identifier, err)
	}
	return nil
}

// TerminateAgentHost terminates an instance, silently ignoring one that no
// longer exists.
func (e *Elastic) TerminateAgentHost(ctx context.Context, identifier string) error {
	if identifier == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, ec2APITimeout)
	defer cancel()
	_, err := e.client.TerminateInstances(ctx, &ec2.TerminateInstancesInput{InstanceIds: []string{identifier}})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("terminate agent instance %s: %w", identifier, err)
	}
	return nil
}

func isAlreadyInState(err error) bool {
	return strings.Contains(err.Error(), "IncorrectInstanceState")
}

func isNotFound(err error) bool {
	return strings.Contains(err.Error(), "InvalidInstanceID.NotFound")
}

func (e *Elastic) ensureSecurityGroup(ctx context.Context) error {
	if e.Cloud.SecurityGroup != "" {
		return nil
	}
	name := fmt.Sprintf("hailstorm-%s", e.Project.Code)
	ctx, cancel := context.WithTimeout(ctx, ec2APITimeout)
	defer cancel()

	out, err := e.client.CreateSecurityGroup(ctx, &ec2.CreateSecurityGroupInput{
		GroupName:   aws.String(name),
		Description: aws.String(fmt.Sprintf("hailstorm load agents for project %s", e.Project.Code)),
	})
	if err != nil {
		return fmt.Errorf("create security group %s: %w", name, err)
	}

	port := int32(e.Cloud.SSHPort)
	if port == 0 {
		port = 22
	}
	_, err = e.client.AuthorizeSecurityGroupIngress(ctx, &ec2.AuthorizeSecurityGroupIngressInput{
		GroupId: out.GroupId,
		IpPermissions: []ec2types.IpPermission{
			{
				IpProtocol: aws.String("tcp"),
				FromPort:   aws.Int32(port),
				ToPort:     aws.Int32(port),
				IpRanges:   []ec2types.IpRange{{CidrIp: aws.String("0.0.0.0/0")}},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("authorize ingress on %s: %w", name, err)
	}

	e.Cloud.SecurityGroup = *out.GroupId
	return e.st.UpdateAmazonCloud(e.Cloud)
}

func (e *Elastic) ensureKeyPair(ctx context.Context) error {
	if !e.Cloud.AutogeneratedSSHKey || e.Cloud.SSHIdentity != "" {
		return nil
	}
	name := fmt.Sprintf("hailstorm-%s", e.Project.Code)
	ctx, cancel := context.WithTimeout(ctx, ec2APITimeout)
	defer cancel()

	out, err := e.client.CreateKeyPair(ctx, &ec2.CreateKeyPairInput{KeyName: aws.String(name)})
	if err != nil {
		return fmt.Errorf("create key pair %s: %w", name, err)
	}

	e.Cloud.SSHIdentity = *out.KeyMaterial // caller persists this to disk; the store only needs the pointer
	return e.st.UpdateAmazonCloud(e.Cloud)
}

func (e *Elastic) pickAvailabilityZone(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, ec2APITimeout)
	defer cancel()

	out, err := e.client.DescribeAvailabilityZones(ctx, &ec2.DescribeAvailabilityZonesInput{
		Filters: []ec2types.Filter{{Name: aws.String("region-name"), Values: []string{e.Cloud.Region}}},
	})
	if err != nil {
		return "", fmt.Errorf("describe availability zones: %w", err)
	}
	for _, z := range out.AvailabilityZones {
		if z.State == ec2types.AvailabilityZoneStateAvailable {
			return aws.ToString(z.ZoneName), nil
		}
	}
	return "", herrors.Configuration(fmt.Sprintf("no available zone in region %s", e.Cloud.Region), nil)
}

// amiName derives the AMI name from (project_code_if_custom_installer,
// jmeter_version), per spec §4.2.
func (e *Elastic) amiName() string {
	if e.customInstaller != "" {
		return fmt.Sprintf("hailstorm-%s-custom-%s", e.Project.Code, e.jmeterVersion)
	}
	return fmt.Sprintf("hailstorm-jmeter-%s", e.jmeterVersion)
}

// ensureAMI resolves e.Cloud.AgentAMI, building and persisting it under the
// project lock if no reusable image exists. Persisting happens in the same
// call that resolves the id, so a concurrent setup() observes the already
// persisted value instead of racing a second build (Open Question
// resolution, see DESIGN.md).
func (e *Elastic) ensureAMI(ctx context.Context) error {
	if e.Cloud.AgentAMI != "" {
		return nil
	}
	if e.Cloud.SSHPort != 22 && e.Cloud.SSHPort != 0 {
		return herrors.Configuration("agent_ami must be pre-supplied when ssh_port is non-standard", nil)
	}

	existing, err := e.checkForExistingAMI(ctx)
	if err != nil {
		return err
	}
	if existing != "" {
		e.Cloud.AgentAMI = existing
		return e.st.UpdateAmazonCloud(e.Cloud)
	}

	ami, err := e.createAgentAMI(ctx)
	if err != nil {
		return err
	}
	e.Cloud.AgentAMI = ami
	return e.st.UpdateAmazonCloud(e.Cloud)
}

func (e *Elastic) checkForExistingAMI(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, ec2APITimeout)
	defer cancel()

	out, err := e.client.DescribeImages(ctx, &ec2.DescribeImagesInput{
		Owners:  []string{"self"},
		Filters: []ec2types.Filter{{Name: aws.String("name"), Values: []string{e.amiName()}}},
	})
	if err != nil {
		return "", fmt.Errorf("describe images %s: %w", e.amiName(), err)
	}
	for _, img := range out.Images {
		if img.State == ec2types.ImageStateAvailable {
			return aws.ToString(img.ImageId), nil
		}
	}
	return "", nil
}

// createAgentAMI launches a builder instance, waits for it to become
// reachable, provisions JMeter via the remote executor, snapshots it to an
// AMI, and always terminates the builder instance — even on failure
// (guaranteed release, spec §4.2).
func (e *Elastic) createAgentAMI(ctx context.Context) (ami string, rerr error) {
	baseAMI, ok := baseAMIByRegion[e.Cloud.Region]
	if !ok {
		return "", herrors.Configuration(fmt.Sprintf("no base AMI known for region %s", e.Cloud.Region), nil)
	}

	runCtx, cancel := context.WithTimeout(ctx, ec2APITimeout)
	runOut, err := e.client.RunInstances(runCtx, &ec2.RunInstancesInput{
		ImageId:      aws.String(baseAMI),
		InstanceType: ec2types.InstanceType(e.Cloud.InstanceType),
		MinCount:     aws.Int32(1),
		MaxCount:     aws.Int32(1),
		KeyName:      aws.String(fmt.Sprintf("hailstorm-%s", e.Project.Code)),
		SecurityGroupIds: []string{e.Cloud.SecurityGroup},
		TagSpecifications: []ec2types.TagSpecification{{
			ResourceType: ec2types.ResourceTypeInstance,
			Tags:         []ec2types.Tag{{Key: aws.String("Name"), Value: aws.String(fmt.Sprintf("hailstorm-ami-builder-%s", e.Project.Code))}},
		}},
	})
	cancel()
	if err != nil {
		return "", fmt.Errorf("launch builder instance: %w", err)
	}
	instanceID := aws.ToString(runOut.Instances[0].InstanceId)

	// Guaranteed release: the builder instance is always terminated, on
	// every return path, success or failure.
	defer func() {
		termCtx, termCancel := context.WithTimeout(context.Background(), ec2APITimeout)
		defer termCancel()
		if _, termErr := e.client.TerminateInstances(termCtx, &ec2.TerminateInstancesInput{InstanceIds: []string{instanceID}}); termErr != nil && rerr == nil {
			rerr = fmt.Errorf("terminate builder instance %s: %w", instanceID, termErr)
		}
	}()

	if err := e.waitForInstanceReachable(ctx, instanceID); err != nil {
		return "", err
	}

	host, err := e.builderHost(ctx, instanceID)
	if err != nil {
		return "", err
	}
	if err := e.provisionJMeter(ctx, host); err != nil {
		return "", err
	}

	imgOut, err := e.client.CreateImage(ctx, &ec2.CreateImageInput{
		InstanceId: aws.String(instanceID),
		Name:       aws.String(e.amiName()),
	})
	if err != nil {
		return "", fmt.Errorf("snapshot builder instance %s to AMI: %w", instanceID, err)
	}
	return aws.ToString(imgOut.ImageId), nil
}

// waitForInstanceReachable polls describe_instance_status until both the
// system and instance reachability checks pass, tolerating transient
// failures, timing out after 15 minutes (spec §4.2).
func (e *Elastic) waitForInstanceReachable(ctx context.Context, instanceID string) error {
	return retry.PollUntil(ctx, fmt.Sprintf("instance %s reachable", instanceID), 15*time.Minute, 10*time.Second, func(ctx context.Context) (bool, error) {
		out, err := e.client.DescribeInstanceStatus(ctx, &ec2.DescribeInstanceStatusInput{InstanceIds: []string{instanceID}})
		if err != nil {
			return false, nil // transient describe failures are tolerated, not fatal
		}
		if len(out.InstanceStatuses) == 0 {
			return false, nil
		}
		status := out.InstanceStatuses[0]
		systemOK := status.SystemStatus != nil && status.SystemStatus.Status == ec2types.SummaryStatusOk
		instanceOK := status.InstanceStatus != nil && status.InstanceStatus.Status == ec2types.SummaryStatusOk
		return systemOK && instanceOK, nil
	})
}

func (e *Elastic) builderHost(ctx context.Context, instanceID string) (remoteexec.Host, error) {
	out, err := e.client.DescribeInstances(ctx, &ec2.DescribeInstancesInput{InstanceIds: []string{instanceID}})
	if err != nil || len(out.Reservations) == 0 || len(out.Reservations[0].Instances) == 0 {
		return remoteexec.Host{}, fmt.Errorf("describe builder instance %s: %w", instanceID, err)
	}
	inst := out.Reservations[0].Instances[0]
	user := e.Cloud.UserName
	if user == "" {
		user = "ubuntu"
	}
	return remoteexec.Host{
		Address:     aws.ToString(inst.PublicIpAddress),
		Port:        e.Cloud.SSHPort,
		User:        user,
		SSHIdentity: e.Cloud.SSHIdentity,
	}, nil
}

func (e *Elastic) provisionJMeter(ctx context.Context, host remoteexec.Host) error {
	if err := e.exec.EnsureConnectivity(ctx, host, 5*time.Minute); err != nil {
		return err
	}
	installer := e.customInstaller
	if installer == "" {
		installer = fmt.Sprintf("https://archive.apache.org/dist/jmeter/binaries/apache-jmeter-%s.tgz", e.jmeterVersion)
	}
	cmd := strings.Join([]string{
		"set -e",
		"sudo apt-get update -y",
		"sudo apt-get install -y default-jre",
		fmt.Sprintf("curl -fsSL %s -o /tmp/jmeter.tgz", installer),
		"sudo tar -xzf /tmp/jmeter.tgz -C /opt",
	}, " && ")
	result, err := e.exec.Exec(ctx, host, cmd, func(line string) {
		if e.log != nil {
			e.log.Debugw("ami build provisioning", "line", line)
		}
	})
	if err != nil {
		return err
	}
	if result.ExitCode != 0 {
		return herrors.Setup(fmt.Sprintf("provisioning command exited %d: %s", result.ExitCode, result.Stderr), nil)
	}
	return nil
}

var _ Backend = (*Elastic)(nil)
