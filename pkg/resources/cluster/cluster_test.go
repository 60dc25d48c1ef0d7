// © 2026 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package cluster

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platform-engineering-labs/formae-plugin-cloudstack/pkg/cloud"
	"github.com/platform-engineering-labs/formae-plugin-cloudstack/pkg/config"
	"github.com/platform-engineering-labs/formae-plugin-cloudstack/pkg/diff"
	"github.com/platform-engineering-labs/formae-plugin-cloudstack/pkg/reconcile"
	"github.com/platform-engineering-labs/formae-plugin-cloudstack/pkg/testutil"
)

func newProvisioner(fake *testutil.FakeCloud, dryRun bool) *Cluster {
	return &Cluster{
		API:    fake,
		Config: &config.Config{DryRun: dryRun},
		differ: diff.New(),
	}
}

func seededCloud() *testutil.FakeCloud {
	fake := testutil.NewFakeCloud()
	fake.Zones = []cloud.Zone{{ID: "z-1", Name: "fra1"}}
	fake.Pods = []cloud.Pod{{ID: "p-1", Name: "pod01", ZoneID: "z-1"}}
	fake.Hypervisors = []string{"KVM", "VMware"}
	return fake
}

func clusterProps() map[string]interface{} {
	return map[string]interface{}{
		"name":        "c01",
		"zone":        "fra1",
		"pod":         "pod01",
		"clusterType": "CloudManaged",
		"hypervisor":  "KVM",
	}
}

func TestEnsurePresentAddsCluster(t *testing.T) {
	fake := seededCloud()
	p := newProvisioner(fake, false)

	result, nativeID, err := p.ensure(context.Background(), clusterProps(), reconcile.StatePresent)

	require.NoError(t, err)
	assert.True(t, result.Changed)
	assert.NotEmpty(t, nativeID)
	assert.Equal(t, []string{"AddCluster"}, fake.MutationCalls())
	assert.Equal(t, "Enabled", result.Resource["allocationState"])
	assert.Equal(t, "pod01", result.Resource["pod"])
}

func TestEnsurePresentIsIdempotent(t *testing.T) {
	fake := seededCloud()
	p := newProvisioner(fake, false)
	ctx := context.Background()

	_, _, err := p.ensure(ctx, clusterProps(), reconcile.StatePresent)
	require.NoError(t, err)

	fake.Calls = nil
	result, _, err := p.ensure(ctx, clusterProps(), reconcile.StatePresent)
	require.NoError(t, err)
	assert.False(t, result.Changed)
	assert.Empty(t, fake.MutationCalls())
}

func TestEnsureDefaultsHypervisorToFirst(t *testing.T) {
	fake := seededCloud()
	p := newProvisioner(fake, false)

	props := clusterProps()
	delete(props, "hypervisor")
	result, _, err := p.ensure(context.Background(), props, reconcile.StatePresent)

	require.NoError(t, err)
	assert.Equal(t, "KVM", result.Resource["hypervisor"])
}

func TestEnsureRequiresClusterType(t *testing.T) {
	fake := seededCloud()
	p := newProvisioner(fake, false)

	props := clusterProps()
	delete(props, "clusterType")
	_, _, err := p.ensure(context.Background(), props, reconcile.StatePresent)

	var missing *reconcile.MissingFieldsError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{"clusterType"}, missing.Fields)
	assert.Empty(t, fake.MutationCalls())
}

func TestEnsureDisableUpdatesAllocationState(t *testing.T) {
	fake := seededCloud()
	fake.Clusters = []cloud.Cluster{{
		ID: "c-1", Name: "c01", ClusterType: "CloudManaged",
		Hypervisor: "KVM", AllocationState: "Enabled",
	}}
	p := newProvisioner(fake, false)

	result, _, err := p.ensure(context.Background(), clusterProps(), reconcile.StateDisabled)

	require.NoError(t, err)
	assert.True(t, result.Changed)
	assert.Equal(t, []string{"UpdateCluster"}, fake.MutationCalls())
	assert.Equal(t, "Enabled", result.Diff.Before["allocationState"])
	assert.Equal(t, "Disabled", result.Diff.After["allocationState"])
	assert.Equal(t, "Disabled", fake.Clusters[0].AllocationState)
}

func TestEnsureUpdateOnlyTouchesUpdatableFields(t *testing.T) {
	fake := seededCloud()
	fake.Clusters = []cloud.Cluster{{
		ID: "c-1", Name: "c01", ClusterType: "CloudManaged",
		Hypervisor: "KVM", AllocationState: "Enabled",
	}}
	p := newProvisioner(fake, false)

	// Same updatable attributes, different create-only options: no change.
	props := clusterProps()
	props["url"] = "http://other.example.com"
	result, _, err := p.ensure(context.Background(), props, reconcile.StatePresent)

	require.NoError(t, err)
	assert.False(t, result.Changed)
	assert.Empty(t, fake.MutationCalls())
}

func TestEnsureAbsentDeletesAndIsIdempotent(t *testing.T) {
	fake := seededCloud()
	fake.Clusters = []cloud.Cluster{{ID: "c-1", Name: "c01", AllocationState: "Enabled"}}
	p := newProvisioner(fake, false)
	ctx := context.Background()

	result, nativeID, err := p.ensure(ctx, clusterProps(), reconcile.StateAbsent)
	require.NoError(t, err)
	assert.True(t, result.Changed)
	assert.Empty(t, nativeID)
	assert.Empty(t, fake.Clusters)

	fake.Calls = nil
	result, _, err = p.ensure(ctx, clusterProps(), reconcile.StateAbsent)
	require.NoError(t, err)
	assert.False(t, result.Changed)
	assert.Empty(t, fake.MutationCalls())
}

func TestDryRunCreateMakesNoCalls(t *testing.T) {
	fake := seededCloud()
	p := newProvisioner(fake, true)

	result, _, err := p.ensure(context.Background(), clusterProps(), reconcile.StatePresent)

	require.NoError(t, err)
	assert.True(t, result.Changed)
	assert.Empty(t, fake.MutationCalls())
	assert.Empty(t, fake.Clusters)
}
