// Package store is the persistent store (spec §3, §6): projects, clusters,
// load agents, execution cycles and their stats. It is the single source of
// truth the rest of the engine reloads derived in-memory state from.
//
// No SQL driver appears anywhere in the reference corpus, so the store
// follows the teacher's own persistence idiom (internal/state.Manager,
// internal/audit.Logger): RWMutex-guarded in-memory tables with an
// Export/Import JSON snapshot for durability, rather than fabricating a
// database dependency nothing in the corpus reaches for. Spec §6 explicitly
// allows this ("any equivalent store works").
package store

import (
	"regexp"
	"time"
)

// CycleStatus enumerates the execution cycle state machine (spec §4.5).
type CycleStatus string

const (
	CycleStarted    CycleStatus = "started"
	CycleStopped    CycleStatus = "stopped"
	CycleAborted    CycleStatus = "aborted"
	CycleTerminated CycleStatus = "terminated"
	CycleExcluded   CycleStatus = "excluded"
	CycleReported   CycleStatus = "reported"
)

// ClusterType discriminates the concrete clusterable row a Cluster points to.
type ClusterType string

const (
	ClusterAmazonCloud ClusterType = "amazon_cloud"
	ClusterDataCenter  ClusterType = "data_center"
)

// LoadAgentType discriminates Master vs Slave load agents.
type LoadAgentType string

const (
	AgentMaster LoadAgentType = "master"
	AgentSlave  LoadAgentType = "slave"
)

var projectCodeSanitizer = regexp.MustCompile(`[^A-Za-z0-9_]`)

// SlugifyProjectCode turns arbitrary input into the `[A-Za-z0-9_]` charset
// required by spec invariant 7, by replacing every other rune with `_`.
func SlugifyProjectCode(raw string) string {
	return projectCodeSanitizer.ReplaceAllString(raw, "_")
}

// Project is the top-level aggregate root (spec §3).
type Project struct {
	ID                     int64
	Code                   string
	MaxThreadsPerAgent     int
	MasterSlaveMode        bool
	SamplesBreakupInterval string // comma list, e.g. "1,3,5"
	SerialVersion          string // "" means not configured
}

// JmeterPlan is a test plan bound to a project.
type JmeterPlan struct {
	ID                 int64
	ProjectID          int64
	TestPlanName       string
	ContentHash        string
	Active             bool
	Properties         map[string]string
	LatestThreadsCount int
}

// Cluster is the abstract row pointing at a concrete clusterable.
type Cluster struct {
	ID          int64
	ProjectID   int64
	ClusterType ClusterType
}

// AmazonCloud is a concrete elastic clusterable (spec §3).
type AmazonCloud struct {
	ID                  int64
	ClusterID           int64
	AccessKey           string
	SecretKey           string
	SSHIdentity         string
	Region              string
	Zone                string
	AgentAMI            string // "" = not yet built/resolved
	Active              bool
	UserName            string // default "ubuntu"
	SecurityGroup       string
	AutogeneratedSSHKey bool
	SSHPort             int // default 22
	InstanceType        string
	MaxThreadsByInstance int
}

// DataCenter is a concrete static clusterable (spec §3).
type DataCenter struct {
	ID          int64
	ClusterID   int64
	UserName    string
	SSHIdentity string
	Machines    []string // non-empty set of reachable hosts
	Title       string
}

// LoadAgent is a remote host running the load-generation runtime.
type LoadAgent struct {
	ID                int64
	ClusterableID     int64
	ClusterableType   ClusterType
	JmeterPlanID      int64
	PublicIPAddress   string
	PrivateIPAddress  string
	Active            bool
	Type              LoadAgentType
	JmeterPID         int // 0 = not running
	Identifier        string // EC2 instance id or machine hostname
}

// TargetHost is a server-side machine being measured by a monitor.
type TargetHost struct {
	ID              int64
	ProjectID       int64
	HostName        string
	RoleName        string
	Type            string // monitor backend discriminator, e.g. "nmon"
	ExecutablePath  string
	ExecutablePID   int
	SSHIdentity     string
	UserName        string
	SamplingInterval time.Duration // default 10s
	Active          bool
}

// ExecutionCycle is one run from start to stop/abort/terminate (spec §4.5).
type ExecutionCycle struct {
	ID           int64
	ProjectID    int64
	Status       CycleStatus
	StartedAt    time.Time
	StoppedAt    *time.Time
	ThreadsCount int
}

// ClientStat aggregates one (cycle, plan, clusterable) triple.
type ClientStat struct {
	ID                          int64
	ExecutionCycleID            int64
	JmeterPlanID                int64
	ClusterableID               int64
	ClusterableType             ClusterType
	ThreadsCount                int
	AggregateNinetyPercentile   float64
	AggregateResponseThroughput float64
	LastSampleAt                *time.Time
}

// PageStat is a per-page-label row owned by a ClientStat.
type PageStat struct {
	ID                         int64
	ClientStatID               int64
	PageLabel                  string
	SamplesCount               int64
	AverageResponseTime        float64
	MedianResponseTime         float64
	NinetyPercentileResponseTime float64
	MinimumResponseTime        float64
	MaximumResponseTime        float64
	PercentageErrors           float64
	ResponseThroughput         float64
	SizeThroughput             float64
	StandardDeviation          float64
	SamplesBreakupJSON         string // e.g. `{"1":12,"3":40,"5":8}`
}

// TargetStat aggregates server-side monitor samples for one (cycle, target).
type TargetStat struct {
	ID                int64
	ExecutionCycleID  int64
	TargetHostID      int64
	AverageCPUUsage   float64
	AverageMemoryUsage float64
	AverageSwapUsage  float64
	CPUUsageTrend     []float64
	MemoryUsageTrend  []float64
	SwapUsageTrend    []float64
}
