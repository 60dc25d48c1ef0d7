// © 2026 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

// Package testutil provides an in-memory CloudStack simulator implementing
// cloud.API. Mutations take effect immediately; asynchronous commands return
// job IDs whose results become available after a configurable number of
// pending polls (zero by default).
package testutil

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/platform-engineering-labs/formae-plugin-cloudstack/pkg/cloud"
)

// FakeCloud is a seedable in-memory cloud.API. Populate the exported slices
// with the platform state a test needs, then inspect Calls (and the slices)
// afterwards. Not safe for concurrent use.
type FakeCloud struct {
	Domains     []cloud.Domain
	Accounts    []cloud.Account
	Projects    []cloud.Project
	Zones       []cloud.Zone
	Pods        []cloud.Pod
	Clusters    []cloud.Cluster
	Hypervisors []string
	OSTypes     []cloud.OSType
	VPCs        []cloud.VPC
	Networks    []cloud.Network
	VMs         []cloud.VirtualMachine
	IPs         []cloud.PublicIPAddress

	// ResourceTags holds tag sets keyed by resource ID, mutated by
	// CreateTags/DeleteTags and merged into listed accounts and instances.
	ResourceTags map[string][]cloud.Tag

	// Calls records every API method invoked, in order.
	Calls []string

	// Errs injects an error for the named method.
	Errs map[string]error

	// PendingPolls makes each job report pending that many times before
	// finishing.
	PendingPolls int

	jobs    map[string]*fakeJob
	nextID  int
	nextJob int
}

type fakeJob struct {
	remaining int
	done      cloud.AsyncJob
}

// NewFakeCloud returns an empty simulator.
func NewFakeCloud() *FakeCloud {
	return &FakeCloud{
		ResourceTags: make(map[string][]cloud.Tag),
		Errs:         make(map[string]error),
		jobs:         make(map[string]*fakeJob),
	}
}

var _ cloud.API = (*FakeCloud)(nil)

// CallCount reports how many times the named method was invoked.
func (f *FakeCloud) CallCount(method string) int {
	n := 0
	for _, c := range f.Calls {
		if c == method {
			n++
		}
	}
	return n
}

// MutationCalls returns the mutating calls made, in order.
func (f *FakeCloud) MutationCalls() []string {
	mutating := map[string]bool{
		"CreateAccount": true, "EnableAccount": true, "DisableAccount": true, "DeleteAccount": true,
		"AddCluster": true, "UpdateCluster": true, "DeleteCluster": true,
		"AddIPToNIC": true, "RemoveIPFromNIC": true,
		"CreateTags": true, "DeleteTags": true,
	}
	var out []string
	for _, c := range f.Calls {
		if mutating[c] {
			out = append(out, c)
		}
	}
	return out
}

func (f *FakeCloud) record(method string) error {
	f.Calls = append(f.Calls, method)
	return f.Errs[method]
}

func (f *FakeCloud) newID(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%d", prefix, f.nextID)
}

func (f *FakeCloud) enqueueJob(resultKey string, result any) string {
	f.nextJob++
	id := fmt.Sprintf("job-%d", f.nextJob)
	payload, _ := json.Marshal(map[string]any{resultKey: result})
	f.jobs[id] = &fakeJob{
		remaining: f.PendingPolls,
		done: cloud.AsyncJob{
			ID:     id,
			Status: cloud.JobSucceeded,
			Result: payload,
		},
	}
	return id
}

// FailJob rewrites a queued job so it reports failure with the given error
// text.
func (f *FakeCloud) FailJob(jobID, errorText string) {
	if j, ok := f.jobs[jobID]; ok {
		j.done = cloud.AsyncJob{ID: jobID, Status: cloud.JobFailed, ErrorText: errorText}
	}
}

func (f *FakeCloud) ListDomains(ctx context.Context) ([]cloud.Domain, error) {
	if err := f.record("ListDomains"); err != nil {
		return nil, err
	}
	return append([]cloud.Domain(nil), f.Domains...), nil
}

func (f *FakeCloud) ListAccounts(ctx context.Context, filter cloud.AccountFilter) ([]cloud.Account, error) {
	if err := f.record("ListAccounts"); err != nil {
		return nil, err
	}
	var out []cloud.Account
	for _, a := range f.Accounts {
		if filter.ID != "" && a.ID != filter.ID {
			continue
		}
		if filter.Name != "" && a.Name != filter.Name {
			continue
		}
		if filter.DomainID != "" && a.DomainID != filter.DomainID {
			continue
		}
		a.Tags = append([]cloud.Tag(nil), f.ResourceTags[a.ID]...)
		out = append(out, a)
	}
	return out, nil
}

func (f *FakeCloud) ListProjects(ctx context.Context, filter cloud.ProjectFilter) ([]cloud.Project, error) {
	if err := f.record("ListProjects"); err != nil {
		return nil, err
	}
	return append([]cloud.Project(nil), f.Projects...), nil
}

func (f *FakeCloud) ListZones(ctx context.Context) ([]cloud.Zone, error) {
	if err := f.record("ListZones"); err != nil {
		return nil, err
	}
	return append([]cloud.Zone(nil), f.Zones...), nil
}

func (f *FakeCloud) ListPods(ctx context.Context, filter cloud.PodFilter) ([]cloud.Pod, error) {
	if err := f.record("ListPods"); err != nil {
		return nil, err
	}
	var out []cloud.Pod
	for _, p := range f.Pods {
		if filter.Name != "" && p.Name != filter.Name {
			continue
		}
		if filter.ZoneID != "" && p.ZoneID != filter.ZoneID {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (f *FakeCloud) ListClusters(ctx context.Context, filter cloud.ClusterFilter) ([]cloud.Cluster, error) {
	if err := f.record("ListClusters"); err != nil {
		return nil, err
	}
	var out []cloud.Cluster
	for _, c := range f.Clusters {
		if filter.ID != "" && c.ID != filter.ID {
			continue
		}
		if filter.ID == "" && filter.Name != "" && c.Name != filter.Name {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (f *FakeCloud) ListHypervisors(ctx context.Context) ([]string, error) {
	if err := f.record("ListHypervisors"); err != nil {
		return nil, err
	}
	return append([]string(nil), f.Hypervisors...), nil
}

func (f *FakeCloud) ListOSTypes(ctx context.Context) ([]cloud.OSType, error) {
	if err := f.record("ListOSTypes"); err != nil {
		return nil, err
	}
	return append([]cloud.OSType(nil), f.OSTypes...), nil
}

func (f *FakeCloud) ListVPCs(ctx context.Context, filter cloud.VPCFilter) ([]cloud.VPC, error) {
	if err := f.record("ListVPCs"); err != nil {
		return nil, err
	}
	return append([]cloud.VPC(nil), f.VPCs...), nil
}

func (f *FakeCloud) ListNetworks(ctx context.Context, filter cloud.NetworkFilter) ([]cloud.Network, error) {
	if err := f.record("ListNetworks"); err != nil {
		return nil, err
	}
	var out []cloud.Network
	for _, n := range f.Networks {
		if filter.VPCID != "" && n.VPCID != filter.VPCID {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

func (f *FakeCloud) ListVirtualMachines(ctx context.Context, filter cloud.VMFilter) ([]cloud.VirtualMachine, error) {
	if err := f.record("ListVirtualMachines"); err != nil {
		return nil, err
	}
	var out []cloud.VirtualMachine
	for _, vm := range f.VMs {
		if filter.ID != "" && vm.ID != filter.ID {
			continue
		}
		if filter.ID == "" && filter.Account != "" && vm.Account != filter.Account {
			continue
		}
		vm.Tags = append([]cloud.Tag(nil), f.ResourceTags[vm.ID]...)
		out = append(out, vm)
	}
	return out, nil
}

func (f *FakeCloud) ListNICs(ctx context.Context, vmID string) ([]cloud.NIC, error) {
	if err := f.record("ListNICs"); err != nil {
		return nil, err
	}
	for _, vm := range f.VMs {
		if vm.ID == vmID {
			return append([]cloud.NIC(nil), vm.NICs...), nil
		}
	}
	return nil, cloud.NewNotFoundError("virtual machine", vmID)
}

func (f *FakeCloud) ListPublicIPAddresses(ctx context.Context, filter cloud.IPAddressFilter) ([]cloud.PublicIPAddress, error) {
	if err := f.record("ListPublicIPAddresses"); err != nil {
		return nil, err
	}
	var out []cloud.PublicIPAddress
	for _, ip := range f.IPs {
		if filter.IPAddress != "" && ip.IPAddress != filter.IPAddress {
			continue
		}
		out = append(out, ip)
	}
	return out, nil
}

func (f *FakeCloud) CreateAccount(ctx context.Context, spec cloud.AccountSpec) (*cloud.Account, error) {
	if err := f.record("CreateAccount"); err != nil {
		return nil, err
	}
	acct := cloud.Account{
		ID:            f.newID("account"),
		Name:          spec.Name,
		State:         "enabled",
		Type:          spec.Type,
		DomainID:      spec.DomainID,
		NetworkDomain: spec.NetworkDomain,
		Created:       "2026-01-01T00:00:00+0000",
	}
	for _, d := range f.Domains {
		if d.ID == spec.DomainID {
			acct.Domain = d.Name
		}
	}
	f.Accounts = append(f.Accounts, acct)
	return &acct, nil
}

func (f *FakeCloud) findAccount(id, name, domainID string) *cloud.Account {
	for i := range f.Accounts {
		if id != "" && f.Accounts[i].ID == id {
			return &f.Accounts[i]
		}
		if id == "" && f.Accounts[i].Name == name && f.Accounts[i].DomainID == domainID {
			return &f.Accounts[i]
		}
	}
	return nil
}

func (f *FakeCloud) EnableAccount(ctx context.Context, id, name, domainID string) (*cloud.Account, error) {
	if err := f.record("EnableAccount"); err != nil {
		return nil, err
	}
	acct := f.findAccount(id, name, domainID)
	if acct == nil {
		return nil, cloud.NewNotFoundError("account", name)
	}
	acct.State = "enabled"
	out := *acct
	return &out, nil
}

func (f *FakeCloud) DisableAccount(ctx context.Context, id, name, domainID string, lock bool) (string, error) {
	if err := f.record("DisableAccount"); err != nil {
		return "", err
	}
	acct := f.findAccount(id, name, domainID)
	if acct == nil {
		return "", cloud.NewNotFoundError("account", name)
	}
	if lock {
		acct.State = "locked"
	} else {
		acct.State = "disabled"
	}
	return f.enqueueJob("account", *acct), nil
}

func (f *FakeCloud) DeleteAccount(ctx context.Context, id string) (string, error) {
	if err := f.record("DeleteAccount"); err != nil {
		return "", err
	}
	for i := range f.Accounts {
		if f.Accounts[i].ID == id {
			deleted := f.Accounts[i]
			f.Accounts = append(f.Accounts[:i], f.Accounts[i+1:]...)
			return f.enqueueJob("account", deleted), nil
		}
	}
	return "", cloud.NewNotFoundError("account", id)
}

func (f *FakeCloud) AddCluster(ctx context.Context, spec cloud.ClusterSpec) (*cloud.Cluster, error) {
	if err := f.record("AddCluster"); err != nil {
		return nil, err
	}
	state := spec.AllocationState
	if state == "" {
		state = "Enabled"
	}
	cl := cloud.Cluster{
		ID:              f.newID("cluster"),
		Name:            spec.Name,
		ClusterType:     spec.ClusterType,
		Hypervisor:      spec.Hypervisor,
		AllocationState: state,
		ManagedState:    "Managed",
		PodID:           spec.PodID,
		ZoneID:          spec.ZoneID,
	}
	for _, p := range f.Pods {
		if p.ID == spec.PodID {
			cl.PodName = p.Name
		}
	}
	for _, z := range f.Zones {
		if z.ID == spec.ZoneID {
			cl.ZoneName = z.Name
		}
	}
	f.Clusters = append(f.Clusters, cl)
	return &cl, nil
}

func (f *FakeCloud) UpdateCluster(ctx context.Context, u cloud.ClusterUpdate) (*cloud.Cluster, error) {
	if err := f.record("UpdateCluster"); err != nil {
		return nil, err
	}
	for i := range f.Clusters {
		if f.Clusters[i].ID != u.ID {
			continue
		}
		cl := &f.Clusters[i]
		if u.Name != "" {
			cl.Name = u.Name
		}
		if u.ClusterType != "" {
			cl.ClusterType = u.ClusterType
		}
		if u.Hypervisor != "" {
			cl.Hypervisor = u.Hypervisor
		}
		if u.AllocationState != "" {
			cl.AllocationState = u.AllocationState
		}
		out := *cl
		return &out, nil
	}
	return nil, cloud.NewNotFoundError("cluster", u.ID)
}

func (f *FakeCloud) DeleteCluster(ctx context.Context, id string) error {
	if err := f.record("DeleteCluster"); err != nil {
		return err
	}
	for i := range f.Clusters {
		if f.Clusters[i].ID == id {
			f.Clusters = append(f.Clusters[:i], f.Clusters[i+1:]...)
			return nil
		}
	}
	return cloud.NewNotFoundError("cluster", id)
}

func (f *FakeCloud) AddIPToNIC(ctx context.Context, nicID, ipAddress string) (string, error) {
	if err := f.record("AddIPToNIC"); err != nil {
		return "", err
	}
	for vi := range f.VMs {
		for ni := range f.VMs[vi].NICs {
			nic := &f.VMs[vi].NICs[ni]
			if nic.ID != nicID {
				continue
			}
			if ipAddress == "" {
				ipAddress = fmt.Sprintf("10.100.0.%d", len(nic.SecondaryIPs)+10)
			}
			sip := cloud.SecondaryIP{ID: f.newID("sip"), IPAddress: ipAddress}
			nic.SecondaryIPs = append(nic.SecondaryIPs, sip)
			return f.enqueueJob("nicsecondaryip", sip), nil
		}
	}
	return "", cloud.NewNotFoundError("nic", nicID)
}

func (f *FakeCloud) RemoveIPFromNIC(ctx context.Context, secondaryIPID string) (string, error) {
	if err := f.record("RemoveIPFromNIC"); err != nil {
		return "", err
	}
	for vi := range f.VMs {
		for ni := range f.VMs[vi].NICs {
			nic := &f.VMs[vi].NICs[ni]
			for si, sip := range nic.SecondaryIPs {
				if sip.ID == secondaryIPID {
					nic.SecondaryIPs = append(nic.SecondaryIPs[:si], nic.SecondaryIPs[si+1:]...)
					return f.enqueueJob("nicsecondaryip", sip), nil
				}
			}
		}
	}
	return "", cloud.NewNotFoundError("secondary IP", secondaryIPID)
}

func (f *FakeCloud) CreateTags(ctx context.Context, resourceIDs []string, resourceType string, tags []cloud.Tag) (string, error) {
	if err := f.record("CreateTags"); err != nil {
		return "", err
	}
	for _, id := range resourceIDs {
		f.ResourceTags[id] = append(f.ResourceTags[id], tags...)
	}
	return f.enqueueJob("tags", tags), nil
}

func (f *FakeCloud) DeleteTags(ctx context.Context, resourceIDs []string, resourceType string, tags []cloud.Tag) (string, error) {
	if err := f.record("DeleteTags"); err != nil {
		return "", err
	}
	remove := make(map[cloud.Tag]bool, len(tags))
	for _, t := range tags {
		remove[t] = true
	}
	for _, id := range resourceIDs {
		var kept []cloud.Tag
		for _, t := range f.ResourceTags[id] {
			if !remove[t] {
				kept = append(kept, t)
			}
		}
		f.ResourceTags[id] = kept
	}
	return f.enqueueJob("tags", tags), nil
}

func (f *FakeCloud) QueryAsyncJob(ctx context.Context, jobID string) (*cloud.AsyncJob, error) {
	if err := f.record("QueryAsyncJob"); err != nil {
		return nil, err
	}
	j, ok := f.jobs[jobID]
	if !ok {
		return nil, cloud.NewNotFoundError("job", jobID)
	}
	if j.remaining > 0 {
		j.remaining--
		return &cloud.AsyncJob{ID: jobID, Status: cloud.JobPending}, nil
	}
	out := j.done
	return &out, nil
}
