// © 2026 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

// Package cloud is the boundary to the CloudStack management API. It decodes
// the API's duck-typed responses into explicit per-kind structs and exposes
// exactly the calls the resource provisioners need.
package cloud

import (
	"context"
	"encoding/json"
)

// Tag is a key/value pair attached to a resource. Tag sets are compared as
// unordered collections.
type Tag struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Domain is a CloudStack domain.
type Domain struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Path string `json:"path"` // e.g. ROOT/CUSTOMERS
}

// Account is a CloudStack account within a domain.
type Account struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	State         string `json:"state"`       // enabled, disabled, locked
	Type          int    `json:"accounttype"` // 0 user, 1 root admin, 2 domain admin
	Domain        string `json:"domain"`
	DomainID      string `json:"domainid"`
	NetworkDomain string `json:"networkdomain"`
	Created       string `json:"created"`
	Tags          []Tag  `json:"tags,omitempty"`
}

// Project is a CloudStack project.
type Project struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayText string `json:"displaytext"`
}

// Zone is a CloudStack zone.
type Zone struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Pod is a CloudStack pod within a zone.
type Pod struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	ZoneID string `json:"zoneid"`
}

// Cluster is a CloudStack host cluster.
type Cluster struct {
	ID                    string `json:"id"`
	Name                  string `json:"name"`
	ClusterType           string `json:"clustertype"` // CloudManaged, ExternalManaged
	Hypervisor            string `json:"hypervisortype"`
	AllocationState       string `json:"allocationstate"` // Enabled, Disabled
	ManagedState          string `json:"managedstate"`
	PodID                 string `json:"podid"`
	PodName               string `json:"podname"`
	ZoneID                string `json:"zoneid"`
	ZoneName              string `json:"zonename"`
	MemoryOvercommitRatio string `json:"memoryovercommitratio,omitempty"`
	CPUOvercommitRatio    string `json:"cpuovercommitratio,omitempty"`
	OVM3VIP               string `json:"ovm3vip,omitempty"`
}

// VPC is a CloudStack virtual private cloud.
type VPC struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayText string `json:"displaytext"`
}

// Network is a CloudStack guest network. VPCID is empty for networks not
// belonging to a VPC.
type Network struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayText string `json:"displaytext"`
	VPCID       string `json:"vpcid,omitempty"`
}

// SecondaryIP is an additional guest IP on a NIC.
type SecondaryIP struct {
	ID        string `json:"id"`
	IPAddress string `json:"ipaddress"`
}

// NIC is a network interface of a virtual machine.
type NIC struct {
	ID           string        `json:"id"`
	NetworkID    string        `json:"networkid"`
	IsDefault    bool          `json:"isdefault"`
	IPAddress    string        `json:"ipaddress"`
	MACAddress   string        `json:"macaddress"`
	Netmask      string        `json:"netmask"`
	SecondaryIPs []SecondaryIP `json:"secondaryip,omitempty"`
}

// AffinityGroup names an affinity group an instance belongs to.
type AffinityGroup struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// VirtualMachine is a CloudStack instance with the fields the plugin reports.
type VirtualMachine struct {
	ID              string
	Name            string
	DisplayName     string
	State           string
	Created         string
	Account         string
	Domain          string
	Project         string
	ZoneName        string
	Group           string
	Hypervisor      string
	InstanceName    string
	PublicIP        string
	PasswordEnabled bool
	Password        string
	ServiceOffering string
	ISO             string
	Template        string
	KeyPair         string
	NICs            []NIC
	SecurityGroups  []string
	AffinityGroups  []AffinityGroup
	Tags            []Tag
}

// PublicIPAddress is an acquired public IP.
type PublicIPAddress struct {
	ID        string `json:"id"`
	IPAddress string `json:"ipaddress"`
	ZoneID    string `json:"zoneid"`
}

// OSType is a guest OS type.
type OSType struct {
	ID          string `json:"id"`
	Description string `json:"description"`
}

// JobStatus is the state of an asynchronous job.
type JobStatus int

const (
	JobPending   JobStatus = 0
	JobSucceeded JobStatus = 1
	JobFailed    JobStatus = 2
)

// AsyncJob is the status of an asynchronous CloudStack job. Result holds the
// raw job result payload; on success it contains the mutated resource under a
// kind-named key (e.g. {"account": {...}}).
type AsyncJob struct {
	ID         string
	Status     JobStatus
	ResultCode int
	ErrorText  string
	Result     json.RawMessage
}

// jobErrorText pulls the errortext field out of a failed job's result
// payload. Empty when the payload has no such field.
func jobErrorText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var body struct {
		ErrorText string `json:"errortext"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return ""
	}
	return body.ErrorText
}

// AccountFilter narrows ListAccounts. ID wins over Name when both are set.
type AccountFilter struct {
	ID       string
	Name     string
	DomainID string
}

// ProjectFilter narrows ListProjects.
type ProjectFilter struct {
	Account  string
	DomainID string
}

// PodFilter narrows ListPods.
type PodFilter struct {
	Name   string
	ZoneID string
}

// ClusterFilter narrows ListClusters. ID wins over Name when both are set.
type ClusterFilter struct {
	ID   string
	Name string
}

// VPCFilter narrows ListVPCs to a scope.
type VPCFilter struct {
	Account   string
	DomainID  string
	ProjectID string
	ZoneID    string
}

// NetworkFilter narrows ListNetworks to a scope.
type NetworkFilter struct {
	Account   string
	DomainID  string
	ProjectID string
	ZoneID    string
	VPCID     string
}

// VMFilter narrows ListVirtualMachines to a scope. ZoneID may stay empty:
// instance names are unique across zones. ID wins over the scope filters.
type VMFilter struct {
	ID        string
	Account   string
	DomainID  string
	ProjectID string
	ZoneID    string
	VPCID     string
}

// IPAddressFilter narrows ListPublicIPAddresses.
type IPAddressFilter struct {
	IPAddress string
	Account   string
	DomainID  string
	ProjectID string
	VPCID     string
}

// AccountSpec describes an account to create. The account's first user is
// created along with it.
type AccountSpec struct {
	Name          string
	DomainID      string
	Type          int
	Email         string
	FirstName     string
	LastName      string
	Username      string
	Password      string
	NetworkDomain string
	Timezone      string
}

// ClusterSpec describes a cluster to add.
type ClusterSpec struct {
	Name              string
	ZoneID            string
	PodID             string
	ClusterType       string
	Hypervisor        string
	AllocationState   string
	URL               string
	Username          string
	Password          string
	GuestVSwitchName  string
	GuestVSwitchType  string
	PublicVSwitchName string
	PublicVSwitchType string
	VSMIPAddress      string
	VSMUsername       string
	VSMPassword       string
	OVM3Cluster       string
	OVM3Pool          string
	OVM3VIP           string
}

// ClusterUpdate describes an in-place cluster update.
type ClusterUpdate struct {
	ID              string
	Name            string
	ClusterType     string
	Hypervisor      string
	AllocationState string
}

// API is the set of CloudStack calls the provisioners are built on. The
// single production implementation wraps the Apache cloudstack-go client;
// tests substitute an in-memory simulator.
type API interface {
	ListDomains(ctx context.Context) ([]Domain, error)
	ListAccounts(ctx context.Context, f AccountFilter) ([]Account, error)
	ListProjects(ctx context.Context, f ProjectFilter) ([]Project, error)
	ListZones(ctx context.Context) ([]Zone, error)
	ListPods(ctx context.Context, f PodFilter) ([]Pod, error)
	ListClusters(ctx context.Context, f ClusterFilter) ([]Cluster, error)
	ListHypervisors(ctx context.Context) ([]string, error)
	ListOSTypes(ctx context.Context) ([]OSType, error)
	ListVPCs(ctx context.Context, f VPCFilter) ([]VPC, error)
	ListNetworks(ctx context.Context, f NetworkFilter) ([]Network, error)
	ListVirtualMachines(ctx context.Context, f VMFilter) ([]VirtualMachine, error)
	ListNICs(ctx context.Context, vmID string) ([]NIC, error)
	ListPublicIPAddresses(ctx context.Context, f IPAddressFilter) ([]PublicIPAddress, error)

	CreateAccount(ctx context.Context, spec AccountSpec) (*Account, error)
	EnableAccount(ctx context.Context, id, name, domainID string) (*Account, error)
	// DisableAccount disables or, with lock set, locks the account.
	// Asynchronous: returns the job ID.
	DisableAccount(ctx context.Context, id, name, domainID string, lock bool) (string, error)
	// DeleteAccount is asynchronous: returns the job ID.
	DeleteAccount(ctx context.Context, id string) (string, error)

	AddCluster(ctx context.Context, spec ClusterSpec) (*Cluster, error)
	UpdateCluster(ctx context.Context, u ClusterUpdate) (*Cluster, error)
	DeleteCluster(ctx context.Context, id string) error

	// AddIPToNIC acquires a secondary guest IP on a NIC. Asynchronous:
	// returns the job ID. ipAddress may be empty to let the platform pick.
	AddIPToNIC(ctx context.Context, nicID, ipAddress string) (string, error)
	// RemoveIPFromNIC releases a secondary guest IP. Asynchronous: returns
	// the job ID.
	RemoveIPFromNIC(ctx context.Context, secondaryIPID string) (string, error)

	// CreateTags and DeleteTags are asynchronous: they return the job ID.
	CreateTags(ctx context.Context, resourceIDs []string, resourceType string, tags []Tag) (string, error)
	DeleteTags(ctx context.Context, resourceIDs []string, resourceType string, tags []Tag) (string, error)

	QueryAsyncJob(ctx context.Context, jobID string) (*AsyncJob, error)
}

// AsyncJobQuerier is the subset of API the job poller needs.
type AsyncJobQuerier interface {
	QueryAsyncJob(ctx context.Context, jobID string) (*AsyncJob, error)
}

// TagAPI is the subset of API the tag reconciler needs.
type TagAPI interface {
	CreateTags(ctx context.Context, resourceIDs []string, resourceType string, tags []Tag) (string, error)
	DeleteTags(ctx context.Context, resourceIDs []string, resourceType string, tags []Tag) (string, error)
	QueryAsyncJob(ctx context.Context, jobID string) (*AsyncJob, error)
}
