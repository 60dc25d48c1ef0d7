// © 2026 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

// Package scope resolves human-supplied names to concrete CloudStack
// resources within a hierarchy of scoping filters: domain, then
// account/project, then zone, then VPC/network/instance. Each kind is
// resolved at most once per reconciliation run; later calls return the
// cached reference so every lookup in a run sees a consistent scope.
package scope

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/platform-engineering-labs/formae-plugin-cloudstack/pkg/cloud"
)

// Params carries the raw scope names or IDs supplied by the caller. Empty
// fields mean no opinion; some kinds then fall back to a documented default
// (first zone, first hypervisor) or to no filtering at all.
type Params struct {
	Domain  string
	Account string
	Project string
	Zone    string
	VPC     string
	Network string
	VM      string
}

// WithEnvFallbacks fills empty scope fields from the CLOUDSTACK_* environment
// variables the CloudStack CLI tooling honors.
func (p Params) WithEnvFallbacks() Params {
	if p.Domain == "" {
		p.Domain = os.Getenv("CLOUDSTACK_DOMAIN")
	}
	if p.Account == "" {
		p.Account = os.Getenv("CLOUDSTACK_ACCOUNT")
	}
	if p.Project == "" {
		p.Project = os.Getenv("CLOUDSTACK_PROJECT")
	}
	if p.Zone == "" {
		p.Zone = os.Getenv("CLOUDSTACK_ZONE")
	}
	if p.VPC == "" {
		p.VPC = os.Getenv("CLOUDSTACK_VPC")
	}
	return p
}

// MissingScopeError reports a scope lookup attempted without the scope it
// depends on. It is raised before any remote call is made.
type MissingScopeError struct {
	Kind     string
	Requires string
}

func (e *MissingScopeError) Error() string {
	return fmt.Sprintf("%s must be specified with %s", e.Kind, e.Requires)
}

// Resolver resolves and memoizes scope entries for one reconciliation run.
// It is not safe for concurrent use; reconciliation runs are single-threaded.
type Resolver struct {
	api    cloud.API
	params Params

	domainDone bool
	domain     *cloud.Domain

	accountDone bool
	account     *cloud.Account

	projectDone bool
	project     *cloud.Project

	zoneDone bool
	zone     *cloud.Zone

	vpcDone bool
	vpc     *cloud.VPC

	networkDone bool
	network     *cloud.Network

	vmDone bool
	vm     *cloud.VirtualMachine

	podDone bool
	pod     *cloud.Pod

	hypervisorDone bool
	hypervisor     string

	osTypeDone bool
	osType     *cloud.OSType

	ipDone bool
	ip     *cloud.PublicIPAddress

	// Network IDs belonging to any VPC in scope, for filtering VPC-owned
	// candidates out of unscoped network/instance lookups.
	vpcNetworkIDs map[string]bool
}

// NewResolver builds a Resolver for one run over the given scope parameters.
func NewResolver(api cloud.API, params Params) *Resolver {
	return &Resolver{api: api, params: params}
}

// Domain resolves the configured domain by path. A path is matched
// case-insensitively against the domain's full path, with or without the
// ROOT/ prefix, so "customers", "root/customers" and "ROOT/CUSTOMERS" all
// name the same domain. Returns (nil, nil) when no domain is configured.
func (r *Resolver) Domain(ctx context.Context) (*cloud.Domain, error) {
	if r.domainDone {
		return r.domain, nil
	}
	if r.params.Domain == "" {
		r.domainDone = true
		return nil, nil
	}

	domains, err := r.api.ListDomains(ctx)
	if err != nil {
		return nil, err
	}
	want := strings.ToLower(r.params.Domain)
	candidates := []string{want, "root/" + want, "root" + want}
	for i := range domains {
		path := strings.ToLower(domains[i].Path)
		for _, c := range candidates {
			if path == c {
				r.domain = &domains[i]
				r.domainDone = true
				return r.domain, nil
			}
		}
	}
	return nil, cloud.NewNotFoundError("domain", r.params.Domain)
}

// Account resolves the configured account. Accounts are only unique within a
// domain, so a configured account without a configured domain fails before
// any remote call. Returns (nil, nil) when no account is configured.
func (r *Resolver) Account(ctx context.Context) (*cloud.Account, error) {
	if r.accountDone {
		return r.account, nil
	}
	if r.params.Account == "" {
		r.accountDone = true
		return nil, nil
	}
	if r.params.Domain == "" {
		return nil, &MissingScopeError{Kind: "account", Requires: "domain"}
	}

	domain, err := r.Domain(ctx)
	if err != nil {
		return nil, err
	}
	accounts, err := r.api.ListAccounts(ctx, cloud.AccountFilter{
		Name:     r.params.Account,
		DomainID: domain.ID,
	})
	if err != nil {
		return nil, err
	}
	// Name plus domain is the platform's own uniqueness key, so the first
	// entry is authoritative.
	if len(accounts) == 0 {
		return nil, cloud.NewNotFoundError("account", r.params.Account)
	}
	r.account = &accounts[0]
	r.accountDone = true
	return r.account, nil
}

// Project resolves the configured project by name, display text or ID within
// the domain/account scope. Returns (nil, nil) when no project is configured.
func (r *Resolver) Project(ctx context.Context) (*cloud.Project, error) {
	if r.projectDone {
		return r.project, nil
	}
	if r.params.Project == "" {
		r.projectDone = true
		return nil, nil
	}

	filter := cloud.ProjectFilter{}
	if domain, err := r.Domain(ctx); err != nil {
		return nil, err
	} else if domain != nil {
		filter.DomainID = domain.ID
	}
	if account, err := r.Account(ctx); err != nil {
		return nil, err
	} else if account != nil {
		filter.Account = account.Name
	}

	projects, err := r.api.ListProjects(ctx, filter)
	if err != nil {
		return nil, err
	}
	idx, err := matchOne("project", r.params.Project, len(projects), func(i int) (name, display, id string) {
		return projects[i].Name, projects[i].DisplayText, projects[i].ID
	})
	if err != nil {
		return nil, err
	}
	r.project = &projects[idx]
	r.projectDone = true
	return r.project, nil
}

// Zone resolves the configured zone by name or ID. When no zone is
// configured the platform's first zone is selected; this is a documented
// default, not an error.
func (r *Resolver) Zone(ctx context.Context) (*cloud.Zone, error) {
	if r.zoneDone {
		return r.zone, nil
	}

	zones, err := r.api.ListZones(ctx)
	if err != nil {
		return nil, err
	}
	if r.params.Zone == "" {
		if len(zones) == 0 {
			return nil, cloud.NewNotFoundError("zone", "(default)")
		}
		r.zone = &zones[0]
		r.zoneDone = true
		return r.zone, nil
	}
	idx, err := matchOne("zone", r.params.Zone, len(zones), func(i int) (name, display, id string) {
		return zones[i].Name, "", zones[i].ID
	})
	if err != nil {
		return nil, err
	}
	r.zone = &zones[idx]
	r.zoneDone = true
	return r.zone, nil
}

// Hypervisor resolves the requested hypervisor name against the platform's
// supported set, defaulting to the first supported hypervisor when the
// request is empty.
func (r *Resolver) Hypervisor(ctx context.Context, requested string) (string, error) {
	if r.hypervisorDone {
		return r.hypervisor, nil
	}

	hypervisors, err := r.api.ListHypervisors(ctx)
	if err != nil {
		return "", err
	}
	if requested == "" {
		if len(hypervisors) == 0 {
			return "", cloud.NewNotFoundError("hypervisor", "(default)")
		}
		r.hypervisor = hypervisors[0]
		r.hypervisorDone = true
		return r.hypervisor, nil
	}
	for _, h := range hypervisors {
		if strings.EqualFold(h, requested) {
			r.hypervisor = h
			r.hypervisorDone = true
			return r.hypervisor, nil
		}
	}
	return "", cloud.NewNotFoundError("hypervisor", requested)
}

// VPC resolves the configured VPC by name, display text or ID within the
// account/zone scope. Returns (nil, nil) when no VPC is configured.
func (r *Resolver) VPC(ctx context.Context) (*cloud.VPC, error) {
	if r.vpcDone {
		return r.vpc, nil
	}
	if r.params.VPC == "" {
		r.vpcDone = true
		return nil, nil
	}

	filter, err := r.vpcFilter(ctx)
	if err != nil {
		return nil, err
	}
	vpcs, err := r.api.ListVPCs(ctx, filter)
	if err != nil {
		return nil, err
	}
	idx, err := matchOne("VPC", r.params.VPC, len(vpcs), func(i int) (name, display, id string) {
		return vpcs[i].Name, vpcs[i].DisplayText, vpcs[i].ID
	})
	if err != nil {
		return nil, err
	}
	r.vpc = &vpcs[idx]
	r.vpcDone = true
	return r.vpc, nil
}

// Network resolves the configured network by name, display text or ID. When
// no VPC is configured, networks belonging to any VPC in scope are excluded
// from matching so an unscoped name never silently picks a VPC-owned
// network. Returns (nil, nil) when no network is configured.
func (r *Resolver) Network(ctx context.Context) (*cloud.Network, error) {
	if r.networkDone {
		return r.network, nil
	}
	if r.params.Network == "" {
		r.networkDone = true
		return nil, nil
	}

	filter := cloud.NetworkFilter{}
	if err := r.fillAccountScope(ctx, &filter.Account, &filter.DomainID, &filter.ProjectID); err != nil {
		return nil, err
	}
	zone, err := r.Zone(ctx)
	if err != nil {
		return nil, err
	}
	filter.ZoneID = zone.ID

	vpc, err := r.VPC(ctx)
	if err != nil {
		return nil, err
	}
	if vpc != nil {
		filter.VPCID = vpc.ID
	}

	networks, err := r.api.ListNetworks(ctx, filter)
	if err != nil {
		return nil, err
	}
	if vpc == nil {
		vpcNetworks, err := r.vpcNetworks(ctx)
		if err != nil {
			return nil, err
		}
		filtered := networks[:0]
		for _, n := range networks {
			if !vpcNetworks[n.ID] {
				filtered = append(filtered, n)
			}
		}
		networks = filtered
	}

	idx, err := matchOne("network", r.params.Network, len(networks), func(i int) (name, display, id string) {
		return networks[i].Name, networks[i].DisplayText, networks[i].ID
	})
	if err != nil {
		return nil, err
	}
	r.network = &networks[idx]
	r.networkDone = true
	return r.network, nil
}

// VirtualMachine resolves the configured instance by name, display name or
// ID. Instance names are unique per account, so no zone filter is applied.
// When no VPC is configured, instances whose default NIC sits on a VPC-owned
// network are excluded from matching.
func (r *Resolver) VirtualMachine(ctx context.Context) (*cloud.VirtualMachine, error) {
	if r.vmDone {
		return r.vm, nil
	}
	if r.params.VM == "" {
		return nil, cloud.NewNotFoundError("virtual machine", "")
	}

	filter := cloud.VMFilter{}
	if err := r.fillAccountScope(ctx, &filter.Account, &filter.DomainID, &filter.ProjectID); err != nil {
		return nil, err
	}
	vpc, err := r.VPC(ctx)
	if err != nil {
		return nil, err
	}
	if vpc != nil {
		filter.VPCID = vpc.ID
	}

	vms, err := r.api.ListVirtualMachines(ctx, filter)
	if err != nil {
		return nil, err
	}
	if vpc == nil {
		vpcNetworks, err := r.vpcNetworks(ctx)
		if err != nil {
			return nil, err
		}
		filtered := vms[:0]
		for _, vm := range vms {
			if !vmInVPC(vm, vpcNetworks) {
				filtered = append(filtered, vm)
			}
		}
		vms = filtered
	}

	idx, err := matchOne("virtual machine", r.params.VM, len(vms), func(i int) (name, display, id string) {
		return vms[i].Name, vms[i].DisplayName, vms[i].ID
	})
	if err != nil {
		return nil, err
	}
	r.vm = &vms[idx]
	r.vmDone = true
	return r.vm, nil
}

func vmInVPC(vm cloud.VirtualMachine, vpcNetworks map[string]bool) bool {
	for _, nic := range vm.NICs {
		if nic.IsDefault {
			return vpcNetworks[nic.NetworkID]
		}
	}
	return false
}

// Pod resolves a pod by name within the zone scope. The platform keys pods
// by name and zone, so the first entry is authoritative.
func (r *Resolver) Pod(ctx context.Context, name string) (*cloud.Pod, error) {
	if r.podDone {
		return r.pod, nil
	}
	if name == "" {
		r.podDone = true
		return nil, nil
	}

	zone, err := r.Zone(ctx)
	if err != nil {
		return nil, err
	}
	pods, err := r.api.ListPods(ctx, cloud.PodFilter{Name: name, ZoneID: zone.ID})
	if err != nil {
		return nil, err
	}
	if len(pods) == 0 {
		return nil, cloud.NewNotFoundError("pod", name)
	}
	r.pod = &pods[0]
	r.podDone = true
	return r.pod, nil
}

// OSType resolves a guest OS type by description or ID.
func (r *Resolver) OSType(ctx context.Context, nameOrID string) (*cloud.OSType, error) {
	if r.osTypeDone {
		return r.osType, nil
	}
	if nameOrID == "" {
		r.osTypeDone = true
		return nil, nil
	}

	types, err := r.api.ListOSTypes(ctx)
	if err != nil {
		return nil, err
	}
	idx, err := matchOne("OS type", nameOrID, len(types), func(i int) (name, display, id string) {
		return types[i].Description, "", types[i].ID
	})
	if err != nil {
		return nil, err
	}
	r.osType = &types[idx]
	r.osTypeDone = true
	return r.osType, nil
}

// PublicIPAddress resolves an acquired public IP by address within the
// account/VPC scope.
func (r *Resolver) PublicIPAddress(ctx context.Context, address string) (*cloud.PublicIPAddress, error) {
	if r.ipDone {
		return r.ip, nil
	}
	if address == "" {
		r.ipDone = true
		return nil, nil
	}

	filter := cloud.IPAddressFilter{IPAddress: address}
	var projectID string
	if err := r.fillAccountScope(ctx, &filter.Account, &filter.DomainID, &projectID); err != nil {
		return nil, err
	}
	filter.ProjectID = projectID
	if vpc, err := r.VPC(ctx); err != nil {
		return nil, err
	} else if vpc != nil {
		filter.VPCID = vpc.ID
	}

	ips, err := r.api.ListPublicIPAddresses(ctx, filter)
	if err != nil {
		return nil, err
	}
	if len(ips) == 0 {
		return nil, cloud.NewNotFoundError("IP address", address)
	}
	r.ip = &ips[0]
	r.ipDone = true
	return r.ip, nil
}

// fillAccountScope resolves the domain/account/project chain and writes the
// resulting filter fields. A project supersedes an account on the platform
// side, so only one of the two is propagated.
func (r *Resolver) fillAccountScope(ctx context.Context, account, domainID, projectID *string) error {
	domain, err := r.Domain(ctx)
	if err != nil {
		return err
	}
	if domain != nil {
		*domainID = domain.ID
	}
	project, err := r.Project(ctx)
	if err != nil {
		return err
	}
	if project != nil {
		*projectID = project.ID
		return nil
	}
	acct, err := r.Account(ctx)
	if err != nil {
		return err
	}
	if acct != nil {
		*account = acct.Name
	}
	return nil
}

func (r *Resolver) vpcFilter(ctx context.Context) (cloud.VPCFilter, error) {
	filter := cloud.VPCFilter{}
	if err := r.fillAccountScope(ctx, &filter.Account, &filter.DomainID, &filter.ProjectID); err != nil {
		return filter, err
	}
	zone, err := r.Zone(ctx)
	if err != nil {
		return filter, err
	}
	filter.ZoneID = zone.ID
	return filter, nil
}

// vpcNetworks returns the set of network IDs owned by any VPC in scope,
// queried once per run.
func (r *Resolver) vpcNetworks(ctx context.Context) (map[string]bool, error) {
	if r.vpcNetworkIDs != nil {
		return r.vpcNetworkIDs, nil
	}

	filter, err := r.vpcFilter(ctx)
	if err != nil {
		return nil, err
	}
	vpcs, err := r.api.ListVPCs(ctx, filter)
	if err != nil {
		return nil, err
	}
	ids := make(map[string]bool)
	for _, vpc := range vpcs {
		networks, err := r.api.ListNetworks(ctx, cloud.NetworkFilter{VPCID: vpc.ID})
		if err != nil {
			return nil, err
		}
		for _, n := range networks {
			ids[n.ID] = true
		}
	}
	r.vpcNetworkIDs = ids
	return ids, nil
}

// matchOne finds the single candidate matching query, trying exact name
// matches first, then display names, then verbatim IDs. Names and display
// names match case-insensitively. More than one match at the winning
// priority is an AmbiguousError; no match at any priority is a
// NotFoundError.
func matchOne(kind, query string, n int, fields func(i int) (name, display, id string)) (int, error) {
	if n == 0 {
		return 0, cloud.NewNotFoundError(kind, query)
	}
	var byName, byDisplay, byID []int
	for i := 0; i < n; i++ {
		name, display, id := fields(i)
		if strings.EqualFold(name, query) {
			byName = append(byName, i)
		}
		if display != "" && strings.EqualFold(display, query) {
			byDisplay = append(byDisplay, i)
		}
		if id == query {
			byID = append(byID, i)
		}
	}
	for _, matches := range [][]int{byName, byDisplay, byID} {
		switch len(matches) {
		case 0:
			continue
		case 1:
			return matches[0], nil
		default:
			return 0, &cloud.AmbiguousError{Kind: kind, Name: query, Count: len(matches)}
		}
	}
	return 0, cloud.NewNotFoundError(kind, query)
}
