// © 2026 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package nic

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platform-engineering-labs/formae/pkg/plugin/resource"

	"github.com/platform-engineering-labs/formae-plugin-cloudstack/pkg/cloud"
	"github.com/platform-engineering-labs/formae-plugin-cloudstack/pkg/config"
	"github.com/platform-engineering-labs/formae-plugin-cloudstack/pkg/jobs"
	"github.com/platform-engineering-labs/formae-plugin-cloudstack/pkg/reconcile"
	"github.com/platform-engineering-labs/formae-plugin-cloudstack/pkg/testutil"
)

func newProvisioner(fake *testutil.FakeCloud, dryRun bool) *NIC {
	return &NIC{
		API:    fake,
		Config: &config.Config{DryRun: dryRun},
		poller: jobs.NewPoller(fake),
	}
}

func seededCloud() *testutil.FakeCloud {
	fake := testutil.NewFakeCloud()
	fake.Zones = []cloud.Zone{{ID: "z-1", Name: "fra1"}}
	fake.Networks = []cloud.Network{
		{ID: "net-a", Name: "frontend"},
		{ID: "net-b", Name: "backend"},
	}
	fake.VMs = []cloud.VirtualMachine{{
		ID:   "vm-1",
		Name: "web01",
		NICs: []cloud.NIC{
			{ID: "n-1", NetworkID: "net-a", IsDefault: true, IPAddress: "10.0.0.10"},
			{ID: "n-2", NetworkID: "net-b", IPAddress: "10.0.1.10"},
		},
	}}
	return fake
}

func ipProps() map[string]interface{} {
	return map[string]interface{}{
		"virtualMachine": "web01",
		"vmGuestIP":      "10.0.0.50",
	}
}

func TestEnsurePresentAddsIPToDefaultNIC(t *testing.T) {
	fake := seededCloud()
	p := newProvisioner(fake, false)

	result, nativeID, err := p.ensure(context.Background(), ipProps(), reconcile.StatePresent)

	require.NoError(t, err)
	assert.True(t, result.Changed)
	assert.Equal(t, []string{"AddIPToNIC"}, fake.MutationCalls())
	assert.Equal(t, "n-1", result.Resource["nicId"], "without a network the default NIC carries the IP")
	assert.Equal(t, "10.0.0.50", result.Resource["vmGuestIP"])
	assert.Contains(t, nativeID, "vm-1/n-1/")
	require.Len(t, fake.VMs[0].NICs[0].SecondaryIPs, 1)
	assert.Equal(t, "10.0.0.50", fake.VMs[0].NICs[0].SecondaryIPs[0].IPAddress)
}

func TestEnsurePresentIsIdempotent(t *testing.T) {
	fake := seededCloud()
	p := newProvisioner(fake, false)
	ctx := context.Background()

	_, _, err := p.ensure(ctx, ipProps(), reconcile.StatePresent)
	require.NoError(t, err)

	fake.Calls = nil
	result, _, err := p.ensure(ctx, ipProps(), reconcile.StatePresent)
	require.NoError(t, err)
	assert.False(t, result.Changed)
	assert.Empty(t, fake.MutationCalls())
}

func TestEnsureSelectsNICByNetwork(t *testing.T) {
	fake := seededCloud()
	p := newProvisioner(fake, false)

	props := ipProps()
	props["network"] = "backend"
	props["vmGuestIP"] = "10.0.1.50"
	result, _, err := p.ensure(context.Background(), props, reconcile.StatePresent)

	require.NoError(t, err)
	assert.Equal(t, "n-2", result.Resource["nicId"])
	assert.Equal(t, "net-b", result.Resource["networkId"])
	require.Len(t, fake.VMs[0].NICs[1].SecondaryIPs, 1)
}

func TestEnsureAbsentRemovesAndIsIdempotent(t *testing.T) {
	fake := seededCloud()
	fake.VMs[0].NICs[0].SecondaryIPs = []cloud.SecondaryIP{
		{ID: "sip-1", IPAddress: "10.0.0.50"},
	}
	p := newProvisioner(fake, false)
	ctx := context.Background()

	result, nativeID, err := p.ensure(ctx, ipProps(), reconcile.StateAbsent)
	require.NoError(t, err)
	assert.True(t, result.Changed)
	assert.Empty(t, nativeID)
	assert.Equal(t, []string{"RemoveIPFromNIC"}, fake.MutationCalls())
	assert.Empty(t, fake.VMs[0].NICs[0].SecondaryIPs)

	fake.Calls = nil
	result, _, err = p.ensure(ctx, ipProps(), reconcile.StateAbsent)
	require.NoError(t, err)
	assert.False(t, result.Changed)
	assert.Empty(t, fake.MutationCalls())
}

func TestEnsureAbsentRequiresIP(t *testing.T) {
	fake := seededCloud()
	p := newProvisioner(fake, false)

	props := ipProps()
	delete(props, "vmGuestIP")
	_, _, err := p.ensure(context.Background(), props, reconcile.StateAbsent)

	var missing *reconcile.MissingFieldsError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{"vmGuestIP"}, missing.Fields)
	assert.Empty(t, fake.Calls)
}

func TestEnsureRequiresVirtualMachine(t *testing.T) {
	fake := seededCloud()
	p := newProvisioner(fake, false)

	_, _, err := p.ensure(context.Background(), map[string]interface{}{"vmGuestIP": "10.0.0.50"}, reconcile.StatePresent)

	var missing *reconcile.MissingFieldsError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{"virtualMachine"}, missing.Fields)
	assert.Empty(t, fake.Calls)
}

func TestAddWithoutPollingSurfacesJobID(t *testing.T) {
	fake := seededCloud()
	p := newProvisioner(fake, false)

	props := ipProps()
	props["pollAsync"] = false
	result, nativeID, err := p.ensure(context.Background(), props, reconcile.StatePresent)

	require.NoError(t, err)
	assert.True(t, result.Changed)
	assert.Empty(t, nativeID, "the assignment ID is unknown until the job finishes")
	assert.NotEmpty(t, result.Resource["jobId"])
	assert.Zero(t, fake.CallCount("QueryAsyncJob"))
}

func TestDryRunMakesNoMutations(t *testing.T) {
	fake := seededCloud()
	p := newProvisioner(fake, true)

	result, _, err := p.ensure(context.Background(), ipProps(), reconcile.StatePresent)

	require.NoError(t, err)
	assert.True(t, result.Changed)
	assert.Empty(t, fake.MutationCalls())
	assert.Empty(t, fake.VMs[0].NICs[0].SecondaryIPs)
}

func TestReadByCompositeNativeID(t *testing.T) {
	fake := seededCloud()
	fake.VMs[0].NICs[0].SecondaryIPs = []cloud.SecondaryIP{
		{ID: "sip-1", IPAddress: "10.0.0.50"},
	}
	p := newProvisioner(fake, false)

	res, err := p.Read(context.Background(), &resource.ReadRequest{NativeID: "vm-1/n-1/sip-1"})

	require.NoError(t, err)
	assert.Contains(t, res.Properties, `"vmGuestIP":"10.0.0.50"`)
	assert.Contains(t, res.Properties, `"virtualMachine":"web01"`)
}

func TestReadMissingSecondaryIPReturnsNotFound(t *testing.T) {
	fake := seededCloud()
	p := newProvisioner(fake, false)

	res, err := p.Read(context.Background(), &resource.ReadRequest{NativeID: "vm-1/n-1/sip-gone"})

	require.Error(t, err)
	assert.Equal(t, resource.OperationErrorCodeNotFound, res.ErrorCode)
}

func TestListEnumeratesSecondaryIPsOfInstance(t *testing.T) {
	fake := seededCloud()
	fake.VMs[0].NICs[0].SecondaryIPs = []cloud.SecondaryIP{
		{ID: "sip-1", IPAddress: "10.0.0.50"},
		{ID: "sip-2", IPAddress: "10.0.0.51"},
	}
	p := newProvisioner(fake, false)

	res, err := p.List(context.Background(), &resource.ListRequest{
		AdditionalProperties: map[string]string{"virtualMachineId": "vm-1"},
	})

	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"vm-1/n-1/sip-1", "vm-1/n-1/sip-2"}, res.NativeIDs)
}

func TestListWithoutInstanceReturnsNothing(t *testing.T) {
	fake := seededCloud()
	p := newProvisioner(fake, false)

	res, err := p.List(context.Background(), &resource.ListRequest{})

	require.NoError(t, err)
	assert.Empty(t, res.NativeIDs)
	assert.Empty(t, fake.Calls)
}
