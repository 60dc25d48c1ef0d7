// © 2026 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package cloud

import (
	"context"
	"net/http"
	"os"
	"strings"

	"github.com/apache/cloudstack-go/v2/cloudstack"
	"github.com/rs/zerolog"

	"github.com/platform-engineering-labs/formae-plugin-cloudstack/pkg/config"
)

// Client implements API on top of the Apache cloudstack-go client. All
// knowledge of the generated request/response types stays in this file.
type Client struct {
	cs  *cloudstack.CloudStackClient
	log zerolog.Logger
}

var _ API = (*Client)(nil)

// NewClient builds a Client from the resolved target configuration. The
// underlying client signs every request with the configured key pair; async
// commands return their job ID without waiting.
func NewClient(cfg *config.Config) *Client {
	httpClient := &http.Client{Timeout: cfg.Timeout()}
	cs := cloudstack.NewClient(
		cfg.APIURL,
		cfg.APIKey,
		cfg.APISecret,
		cfg.ShouldVerifySSL(),
		cloudstack.WithHTTPClient(httpClient),
	)
	if cfg.APIHTTPMethod == "get" {
		cs.HTTPGETOnly = true
	}

	log := zerolog.New(os.Stderr).With().Timestamp().Str("component", "cloudstack").Logger()
	level := zerolog.Disabled
	if v := os.Getenv("CLOUDSTACK_LOG_LEVEL"); v != "" {
		if parsed, err := zerolog.ParseLevel(strings.ToLower(v)); err == nil {
			level = parsed
		}
	}

	return &Client{cs: cs, log: log.Level(level)}
}

func (c *Client) ListDomains(ctx context.Context) ([]Domain, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := c.cs.Domain.NewListDomainsParams()
	p.SetListall(true)
	resp, err := c.cs.Domain.ListDomains(p)
	if err != nil {
		return nil, &PlatformError{Command: "listDomains", Underlying: err}
	}
	out := make([]Domain, 0, len(resp.Domains))
	for _, d := range resp.Domains {
		out = append(out, Domain{ID: d.Id, Name: d.Name, Path: d.Path})
	}
	c.log.Debug().Int("count", len(out)).Msg("listed domains")
	return out, nil
}

func (c *Client) ListAccounts(ctx context.Context, f AccountFilter) ([]Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := c.cs.Account.NewListAccountsParams()
	p.SetListall(true)
	if f.ID != "" {
		p.SetId(f.ID)
	}
	if f.Name != "" {
		p.SetName(f.Name)
	}
	if f.DomainID != "" {
		p.SetDomainid(f.DomainID)
	}
	resp, err := c.cs.Account.ListAccounts(p)
	if err != nil {
		return nil, &PlatformError{Command: "listAccounts", Underlying: err}
	}
	out := make([]Account, 0, len(resp.Accounts))
	for _, a := range resp.Accounts {
		out = append(out, Account{
			ID:            a.Id,
			Name:          a.Name,
			State:         a.State,
			Type:          a.Accounttype,
			Domain:        a.Domain,
			DomainID:      a.Domainid,
			NetworkDomain: a.Networkdomain,
			Created:       a.Created,
		})
	}
	return out, nil
}

func (c *Client) ListProjects(ctx context.Context, f ProjectFilter) ([]Project, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := c.cs.Project.NewListProjectsParams()
	p.SetListall(true)
	if f.Account != "" {
		p.SetAccount(f.Account)
	}
	if f.DomainID != "" {
		p.SetDomainid(f.DomainID)
	}
	resp, err := c.cs.Project.ListProjects(p)
	if err != nil {
		return nil, &PlatformError{Command: "listProjects", Underlying: err}
	}
	out := make([]Project, 0, len(resp.Projects))
	for _, pr := range resp.Projects {
		out = append(out, Project{ID: pr.Id, Name: pr.Name, DisplayText: pr.Displaytext})
	}
	return out, nil
}

func (c *Client) ListZones(ctx context.Context) ([]Zone, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := c.cs.Zone.NewListZonesParams()
	resp, err := c.cs.Zone.ListZones(p)
	if err != nil {
		return nil, &PlatformError{Command: "listZones", Underlying: err}
	}
	out := make([]Zone, 0, len(resp.Zones))
	for _, z := range resp.Zones {
		out = append(out, Zone{ID: z.Id, Name: z.Name})
	}
	return out, nil
}

func (c *Client) ListPods(ctx context.Context, f PodFilter) ([]Pod, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := c.cs.Pod.NewListPodsParams()
	if f.Name != "" {
		p.SetName(f.Name)
	}
	if f.ZoneID != "" {
		p.SetZoneid(f.ZoneID)
	}
	resp, err := c.cs.Pod.ListPods(p)
	if err != nil {
		return nil, &PlatformError{Command: "listPods", Underlying: err}
	}
	out := make([]Pod, 0, len(resp.Pods))
	for _, pod := range resp.Pods {
		out = append(out, Pod{ID: pod.Id, Name: pod.Name, ZoneID: pod.Zoneid})
	}
	return out, nil
}

func (c *Client) ListClusters(ctx context.Context, f ClusterFilter) ([]Cluster, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := c.cs.Cluster.NewListClustersParams()
	if f.ID != "" {
		p.SetId(f.ID)
	} else if f.Name != "" {
		p.SetName(f.Name)
	}
	resp, err := c.cs.Cluster.ListClusters(p)
	if err != nil {
		return nil, &PlatformError{Command: "listClusters", Underlying: err}
	}
	out := make([]Cluster, 0, len(resp.Clusters))
	for _, cl := range resp.Clusters {
		out = append(out, Cluster{
			ID:                    cl.Id,
			Name:                  cl.Name,
			ClusterType:           cl.Clustertype,
			Hypervisor:            cl.Hypervisortype,
			AllocationState:       cl.Allocationstate,
			ManagedState:          cl.Managedstate,
			PodID:                 cl.Podid,
			PodName:               cl.Podname,
			ZoneID:                cl.Zoneid,
			ZoneName:              cl.Zonename,
			MemoryOvercommitRatio: cl.Memoryovercommitratio,
			CPUOvercommitRatio:    cl.Cpuovercommitratio,
			OVM3VIP:               cl.Ovm3vip,
		})
	}
	return out, nil
}

func (c *Client) ListHypervisors(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := c.cs.Hypervisor.NewListHypervisorsParams()
	resp, err := c.cs.Hypervisor.ListHypervisors(p)
	if err != nil {
		return nil, &PlatformError{Command: "listHypervisors", Underlying: err}
	}
	out := make([]string, 0, len(resp.Hypervisors))
	for _, h := range resp.Hypervisors {
		out = append(out, h.Name)
	}
	return out, nil
}

func (c *Client) ListOSTypes(ctx context.Context) ([]OSType, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := c.cs.GuestOS.NewListOsTypesParams()
	resp, err := c.cs.GuestOS.ListOsTypes(p)
	if err != nil {
		return nil, &PlatformError{Command: "listOsTypes", Underlying: err}
	}
	out := make([]OSType, 0, len(resp.OsTypes))
	for _, t := range resp.OsTypes {
		out = append(out, OSType{ID: t.Id, Description: t.Description})
	}
	return out, nil
}

func (c *Client) ListVPCs(ctx context.Context, f VPCFilter) ([]VPC, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := c.cs.VPC.NewListVPCsParams()
	p.SetListall(true)
	if f.Account != "" {
		p.SetAccount(f.Account)
	}
	if f.DomainID != "" {
		p.SetDomainid(f.DomainID)
	}
	if f.ProjectID != "" {
		p.SetProjectid(f.ProjectID)
	}
	if f.ZoneID != "" {
		p.SetZoneid(f.ZoneID)
	}
	resp, err := c.cs.VPC.ListVPCs(p)
	if err != nil {
		return nil, &PlatformError{Command: "listVPCs", Underlying: err}
	}
	out := make([]VPC, 0, len(resp.VPCs))
	for _, v := range resp.VPCs {
		out = append(out, VPC{ID: v.Id, Name: v.Name, DisplayText: v.Displaytext})
	}
	return out, nil
}

func (c *Client) ListNetworks(ctx context.Context, f NetworkFilter) ([]Network, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := c.cs.Network.NewListNetworksParams()
	p.SetListall(true)
	if f.Account != "" {
		p.SetAccount(f.Account)
	}
	if f.DomainID != "" {
		p.SetDomainid(f.DomainID)
	}
	if f.ProjectID != "" {
		p.SetProjectid(f.ProjectID)
	}
	if f.ZoneID != "" {
		p.SetZoneid(f.ZoneID)
	}
	if f.VPCID != "" {
		p.SetVpcid(f.VPCID)
	}
	resp, err := c.cs.Network.ListNetworks(p)
	if err != nil {
		return nil, &PlatformError{Command: "listNetworks", Underlying: err}
	}
	out := make([]Network, 0, len(resp.Networks))
	for _, n := range resp.Networks {
		out = append(out, Network{ID: n.Id, Name: n.Name, DisplayText: n.Displaytext, VPCID: n.Vpcid})
	}
	return out, nil
}

func (c *Client) ListVirtualMachines(ctx context.Context, f VMFilter) ([]VirtualMachine, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := c.cs.VirtualMachine.NewListVirtualMachinesParams()
	p.SetListall(true)
	if f.ID != "" {
		p.SetId(f.ID)
	}
	if f.Account != "" {
		p.SetAccount(f.Account)
	}
	if f.DomainID != "" {
		p.SetDomainid(f.DomainID)
	}
	if f.ProjectID != "" {
		p.SetProjectid(f.ProjectID)
	}
	if f.ZoneID != "" {
		p.SetZoneid(f.ZoneID)
	}
	if f.VPCID != "" {
		p.SetVpcid(f.VPCID)
	}
	resp, err := c.cs.VirtualMachine.ListVirtualMachines(p)
	if err != nil {
		return nil, &PlatformError{Command: "listVirtualMachines", Underlying: err}
	}
	out := make([]VirtualMachine, 0, len(resp.VirtualMachines))
	for _, vm := range resp.VirtualMachines {
		out = append(out, convertVirtualMachine(vm))
	}
	return out, nil
}

func convertVirtualMachine(vm *cloudstack.VirtualMachine) VirtualMachine {
	out := VirtualMachine{
		ID:              vm.Id,
		Name:            vm.Name,
		DisplayName:     vm.Displayname,
		State:           vm.State,
		Created:         vm.Created,
		Account:         vm.Account,
		Domain:          vm.Domain,
		Project:         vm.Project,
		ZoneName:        vm.Zonename,
		Group:           vm.Group,
		Hypervisor:      vm.Hypervisor,
		InstanceName:    vm.Instancename,
		PublicIP:        vm.Publicip,
		PasswordEnabled: vm.Passwordenabled,
		Password:        vm.Password,
		ServiceOffering: vm.Serviceofferingname,
		ISO:             vm.Isoname,
		Template:        vm.Templatename,
		KeyPair:         vm.Keypairs,
		Tags:            convertTags(vm.Tags),
	}
	for _, n := range vm.Nic {
		out.NICs = append(out.NICs, convertNIC(&n))
	}
	for _, sg := range vm.Securitygroup {
		out.SecurityGroups = append(out.SecurityGroups, sg.Name)
	}
	for _, ag := range vm.Affinitygroup {
		out.AffinityGroups = append(out.AffinityGroups, AffinityGroup{ID: ag.Id, Name: ag.Name})
	}
	return out
}

func convertNIC(n *cloudstack.Nic) NIC {
	nic := NIC{
		ID:         n.Id,
		NetworkID:  n.Networkid,
		IsDefault:  n.Isdefault,
		IPAddress:  n.Ipaddress,
		MACAddress: n.Macaddress,
		Netmask:    n.Netmask,
	}
	for _, sip := range n.Secondaryip {
		nic.SecondaryIPs = append(nic.SecondaryIPs, SecondaryIP{ID: sip.Id, IPAddress: sip.Ipaddress})
	}
	return nic
}

func convertTags(tags []cloudstack.Tags) []Tag {
	if len(tags) == 0 {
		return nil
	}
	out := make([]Tag, 0, len(tags))
	for _, t := range tags {
		out = append(out, Tag{Key: t.Key, Value: t.Value})
	}
	return out
}

func (c *Client) ListNICs(ctx context.Context, vmID string) ([]NIC, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := c.cs.Nic.NewListNicsParams(vmID)
	resp, err := c.cs.Nic.ListNics(p)
	if err != nil {
		return nil, &PlatformError{Command: "listNics", Underlying: err}
	}
	out := make([]NIC, 0, len(resp.Nics))
	for _, n := range resp.Nics {
		out = append(out, convertNIC(n))
	}
	return out, nil
}

func (c *Client) ListPublicIPAddresses(ctx context.Context, f IPAddressFilter) ([]PublicIPAddress, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := c.cs.Address.NewListPublicIpAddressesParams()
	p.SetListall(true)
	if f.IPAddress != "" {
		p.SetIpaddress(f.IPAddress)
	}
	if f.Account != "" {
		p.SetAccount(f.Account)
	}
	if f.DomainID != "" {
		p.SetDomainid(f.DomainID)
	}
	if f.ProjectID != "" {
		p.SetProjectid(f.ProjectID)
	}
	if f.VPCID != "" {
		p.SetVpcid(f.VPCID)
	}
	resp, err := c.cs.Address.ListPublicIpAddresses(p)
	if err != nil {
		return nil, &PlatformError{Command: "listPublicIpAddresses", Underlying: err}
	}
	out := make([]PublicIPAddress, 0, len(resp.PublicIpAddresses))
	for _, ip := range resp.PublicIpAddresses {
		out = append(out, PublicIPAddress{ID: ip.Id, IPAddress: ip.Ipaddress, ZoneID: ip.Zoneid})
	}
	return out, nil
}

func (c *Client) CreateAccount(ctx context.Context, spec AccountSpec) (*Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := c.cs.Account.NewCreateAccountParams(spec.Email, spec.FirstName, spec.LastName, spec.Password, spec.Username)
	p.SetAccount(spec.Name)
	p.SetAccounttype(spec.Type)
	if spec.DomainID != "" {
		p.SetDomainid(spec.DomainID)
	}
	if spec.NetworkDomain != "" {
		p.SetNetworkdomain(spec.NetworkDomain)
	}
	if spec.Timezone != "" {
		p.SetTimezone(spec.Timezone)
	}
	resp, err := c.cs.Account.CreateAccount(p)
	if err != nil {
		return nil, &PlatformError{Command: "createAccount", Underlying: err}
	}
	c.log.Debug().Str("account", spec.Name).Str("id", resp.Id).Msg("created account")
	return &Account{
		ID:            resp.Id,
		Name:          resp.Name,
		State:         resp.State,
		Type:          resp.Accounttype,
		Domain:        resp.Domain,
		DomainID:      resp.Domainid,
		NetworkDomain: resp.Networkdomain,
		Created:       resp.Created,
	}, nil
}

func (c *Client) EnableAccount(ctx context.Context, id, name, domainID string) (*Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := c.cs.Account.NewEnableAccountParams()
	if id != "" {
		p.SetId(id)
	} else {
		p.SetAccount(name)
		p.SetDomainid(domainID)
	}
	resp, err := c.cs.Account.EnableAccount(p)
	if err != nil {
		return nil, &PlatformError{Command: "enableAccount", Underlying: err}
	}
	return &Account{
		ID:            resp.Id,
		Name:          resp.Name,
		State:         resp.State,
		Type:          resp.Accounttype,
		Domain:        resp.Domain,
		DomainID:      resp.Domainid,
		NetworkDomain: resp.Networkdomain,
		Created:       resp.Created,
	}, nil
}

func (c *Client) DisableAccount(ctx context.Context, id, name, domainID string, lock bool) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p := c.cs.Account.NewDisableAccountParams(lock)
	if id != "" {
		p.SetId(id)
	} else {
		p.SetAccount(name)
		p.SetDomainid(domainID)
	}
	resp, err := c.cs.Account.DisableAccount(p)
	if err != nil {
		return "", &PlatformError{Command: "disableAccount", Underlying: err}
	}
	return resp.JobID, nil
}

func (c *Client) DeleteAccount(ctx context.Context, id string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p := c.cs.Account.NewDeleteAccountParams(id)
	resp, err := c.cs.Account.DeleteAccount(p)
	if err != nil {
		return "", &PlatformError{Command: "deleteAccount", Underlying: err}
	}
	return resp.JobID, nil
}

func (c *Client) AddCluster(ctx context.Context, spec ClusterSpec) (*Cluster, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := c.cs.Cluster.NewAddClusterParams(spec.Name, spec.ClusterType, spec.Hypervisor, spec.PodID, spec.ZoneID)
	if spec.AllocationState != "" {
		p.SetAllocationstate(spec.AllocationState)
	}
	if spec.URL != "" {
		p.SetUrl(spec.URL)
	}
	if spec.Username != "" {
		p.SetUsername(spec.Username)
	}
	if spec.Password != "" {
		p.SetPassword(spec.Password)
	}
	if spec.GuestVSwitchName != "" {
		p.SetGuestvswitchname(spec.GuestVSwitchName)
	}
	if spec.GuestVSwitchType != "" {
		p.SetGuestvswitchtype(spec.GuestVSwitchType)
	}
	if spec.PublicVSwitchName != "" {
		p.SetPublicvswitchname(spec.PublicVSwitchName)
	}
	if spec.PublicVSwitchType != "" {
		p.SetPublicvswitchtype(spec.PublicVSwitchType)
	}
	if spec.VSMIPAddress != "" {
		p.SetVsmipaddress(spec.VSMIPAddress)
	}
	if spec.VSMUsername != "" {
		p.SetVsmusername(spec.VSMUsername)
	}
	if spec.VSMPassword != "" {
		p.SetVsmpassword(spec.VSMPassword)
	}
	if spec.OVM3Cluster != "" {
		p.SetOvm3cluster(spec.OVM3Cluster)
	}
	if spec.OVM3Pool != "" {
		p.SetOvm3pool(spec.OVM3Pool)
	}
	if spec.OVM3VIP != "" {
		p.SetOvm3vip(spec.OVM3VIP)
	}
	resp, err := c.cs.Cluster.AddCluster(p)
	if err != nil {
		return nil, &PlatformError{Command: "addCluster", Underlying: err}
	}
	c.log.Debug().Str("cluster", spec.Name).Str("id", resp.Id).Msg("added cluster")
	return &Cluster{
		ID:              resp.Id,
		Name:            resp.Name,
		ClusterType:     resp.Clustertype,
		Hypervisor:      resp.Hypervisortype,
		AllocationState: resp.Allocationstate,
		ManagedState:    resp.Managedstate,
		PodID:           resp.Podid,
		PodName:         resp.Podname,
		ZoneID:          resp.Zoneid,
		ZoneName:        resp.Zonename,
	}, nil
}

func (c *Client) UpdateCluster(ctx context.Context, u ClusterUpdate) (*Cluster, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := c.cs.Cluster.NewUpdateClusterParams(u.ID)
	if u.Name != "" {
		p.SetClustername(u.Name)
	}
	if u.ClusterType != "" {
		p.SetClustertype(u.ClusterType)
	}
	if u.Hypervisor != "" {
		p.SetHypervisor(u.Hypervisor)
	}
	if u.AllocationState != "" {
		p.SetAllocationstate(u.AllocationState)
	}
	resp, err := c.cs.Cluster.UpdateCluster(p)
	if err != nil {
		return nil, &PlatformError{Command: "updateCluster", Underlying: err}
	}
	return &Cluster{
		ID:              resp.Id,
		Name:            resp.Name,
		ClusterType:     resp.Clustertype,
		Hypervisor:      resp.Hypervisortype,
		AllocationState: resp.Allocationstate,
		ManagedState:    resp.Managedstate,
		PodID:           resp.Podid,
		PodName:         resp.Podname,
		ZoneID:          resp.Zoneid,
		ZoneName:        resp.Zonename,
	}, nil
}

func (c *Client) DeleteCluster(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p := c.cs.Cluster.NewDeleteClusterParams(id)
	if _, err := c.cs.Cluster.DeleteCluster(p); err != nil {
		return &PlatformError{Command: "deleteCluster", Underlying: err}
	}
	return nil
}

func (c *Client) AddIPToNIC(ctx context.Context, nicID, ipAddress string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p := c.cs.Nic.NewAddIpToNicParams(nicID)
	if ipAddress != "" {
		p.SetIpaddress(ipAddress)
	}
	resp, err := c.cs.Nic.AddIpToNic(p)
	if err != nil {
		return "", &PlatformError{Command: "addIpToNic", Underlying: err}
	}
	return resp.JobID, nil
}

func (c *Client) RemoveIPFromNIC(ctx context.Context, secondaryIPID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p := c.cs.Nic.NewRemoveIpFromNicParams(secondaryIPID)
	resp, err := c.cs.Nic.RemoveIpFromNic(p)
	if err != nil {
		return "", &PlatformError{Command: "removeIpFromNic", Underlying: err}
	}
	return resp.JobID, nil
}

func (c *Client) CreateTags(ctx context.Context, resourceIDs []string, resourceType string, tags []Tag) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p := c.cs.Resourcetags.NewCreateTagsParams(resourceIDs, resourceType, tagMap(tags))
	resp, err := c.cs.Resourcetags.CreateTags(p)
	if err != nil {
		return "", &PlatformError{Command: "createTags", Underlying: err}
	}
	return resp.JobID, nil
}

func (c *Client) DeleteTags(ctx context.Context, resourceIDs []string, resourceType string, tags []Tag) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p := c.cs.Resourcetags.NewDeleteTagsParams(resourceIDs, resourceType)
	p.SetTags(tagMap(tags))
	resp, err := c.cs.Resourcetags.DeleteTags(p)
	if err != nil {
		return "", &PlatformError{Command: "deleteTags", Underlying: err}
	}
	return resp.JobID, nil
}

func tagMap(tags []Tag) map[string]string {
	m := make(map[string]string, len(tags))
	for _, t := range tags {
		m[t.Key] = t.Value
	}
	return m
}

func (c *Client) QueryAsyncJob(ctx context.Context, jobID string) (*AsyncJob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := c.cs.Asyncjob.NewQueryAsyncJobResultParams(jobID)
	resp, err := c.cs.Asyncjob.QueryAsyncJobResult(p)
	if err != nil {
		return nil, &PlatformError{Command: "queryAsyncJobResult", Underlying: err}
	}
	job := &AsyncJob{
		ID:         jobID,
		Status:     JobStatus(resp.Jobstatus),
		ResultCode: resp.Jobresultcode,
		Result:     resp.Jobresult,
	}
	if job.Status == JobFailed {
		job.ErrorText = jobErrorText(resp.Jobresult)
	}
	return job, nil
}
