// © 2026 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package account

import (
	"context"
	"encoding/json"
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

func newProvisioner(fake *testutil.FakeCloud, dryRun bool) *Account {
	return &Account{
		API:    fake,
		Config: &config.Config{DryRun: dryRun},
		poller: jobs.NewPoller(fake),
	}
}

func emptyDomainCloud() *testutil.FakeCloud {
	fake := testutil.NewFakeCloud()
	fake.Domains = []cloud.Domain{{ID: "d-root", Name: "ROOT", Path: "ROOT"}}
	return fake
}

func acmeProps() map[string]interface{} {
	return map[string]interface{}{
		"name":      "acme",
		"domain":    "ROOT",
		"username":  "acme",
		"password":  "x",
		"firstName": "A",
		"lastName":  "B",
		"email":     "a@b.com",
	}
}

func TestEnsurePresentCreatesAccount(t *testing.T) {
	fake := emptyDomainCloud()
	p := newProvisioner(fake, false)

	result, nativeID, err := p.ensure(context.Background(), acmeProps(), reconcile.StatePresent)

	require.NoError(t, err)
	assert.True(t, result.Changed)
	assert.NotEmpty(t, nativeID)
	assert.Equal(t, []string{"CreateAccount"}, fake.MutationCalls())
	assert.Equal(t, "enabled", result.Resource["state"], "a fresh account carries the platform default state")
}

func TestEnsurePresentIsIdempotent(t *testing.T) {
	fake := emptyDomainCloud()
	p := newProvisioner(fake, false)
	ctx := context.Background()

	_, _, err := p.ensure(ctx, acmeProps(), reconcile.StatePresent)
	require.NoError(t, err)

	fake.Calls = nil
	result, _, err := p.ensure(ctx, acmeProps(), reconcile.StatePresent)
	require.NoError(t, err)
	assert.False(t, result.Changed)
	assert.Empty(t, fake.MutationCalls(), "a matching account must not trigger mutations")
}

func TestEnsureFailsFastOnMissingCreateFields(t *testing.T) {
	fake := emptyDomainCloud()
	p := newProvisioner(fake, false)

	props := map[string]interface{}{"name": "acme", "domain": "ROOT", "email": "a@b.com"}
	_, _, err := p.ensure(context.Background(), props, reconcile.StatePresent)

	var missing *reconcile.MissingFieldsError
	require.ErrorAs(t, err, &missing)
	assert.ElementsMatch(t, []string{"username", "password", "firstName", "lastName"}, missing.Fields)
	assert.Empty(t, fake.MutationCalls())
}

func TestEnsureWithoutDomainFailsBeforeRemoteCall(t *testing.T) {
	fake := emptyDomainCloud()
	p := newProvisioner(fake, false)

	props := acmeProps()
	delete(props, "domain")
	_, _, err := p.ensure(context.Background(), props, reconcile.StatePresent)

	require.Error(t, err)
	assert.Equal(t, "account must be specified with domain", err.Error())
	assert.Empty(t, fake.Calls)
}

func TestLockingDisabledAccountEnablesFirst(t *testing.T) {
	fake := emptyDomainCloud()
	fake.Accounts = []cloud.Account{
		{ID: "a-1", Name: "acme", State: "disabled", DomainID: "d-root", Domain: "ROOT"},
	}
	p := newProvisioner(fake, false)

	result, _, err := p.ensure(context.Background(), acmeProps(), reconcile.StateLocked)

	require.NoError(t, err)
	assert.True(t, result.Changed)
	assert.Equal(t, []string{"EnableAccount", "DisableAccount"}, fake.MutationCalls(),
		"a disabled account must pass through enabled before locking")
	assert.Equal(t, "locked", fake.Accounts[0].State)
}

func TestLockingLockedAccountIsNoop(t *testing.T) {
	fake := emptyDomainCloud()
	fake.Accounts = []cloud.Account{
		{ID: "a-1", Name: "acme", State: "locked", DomainID: "d-root", Domain: "ROOT"},
	}
	p := newProvisioner(fake, false)

	result, _, err := p.ensure(context.Background(), acmeProps(), reconcile.StateLocked)

	require.NoError(t, err)
	assert.False(t, result.Changed)
	assert.Empty(t, fake.MutationCalls())
}

func TestEnsureDisabled(t *testing.T) {
	fake := emptyDomainCloud()
	fake.Accounts = []cloud.Account{
		{ID: "a-1", Name: "acme", State: "enabled", DomainID: "d-root", Domain: "ROOT"},
	}
	p := newProvisioner(fake, false)

	result, _, err := p.ensure(context.Background(), acmeProps(), reconcile.StateDisabled)

	require.NoError(t, err)
	assert.True(t, result.Changed)
	assert.Equal(t, "disabled", result.Resource["state"])
	assert.Equal(t, []string{"DisableAccount"}, fake.MutationCalls())
}

func TestEnsureAbsentDeletesAndIsIdempotent(t *testing.T) {
	fake := emptyDomainCloud()
	fake.Accounts = []cloud.Account{
		{ID: "a-1", Name: "acme", State: "enabled", DomainID: "d-root", Domain: "ROOT"},
	}
	p := newProvisioner(fake, false)
	ctx := context.Background()

	result, nativeID, err := p.ensure(ctx, acmeProps(), reconcile.StateAbsent)
	require.NoError(t, err)
	assert.True(t, result.Changed)
	assert.Empty(t, nativeID)
	assert.Empty(t, fake.Accounts)

	fake.Calls = nil
	result, _, err = p.ensure(ctx, acmeProps(), reconcile.StateAbsent)
	require.NoError(t, err)
	assert.False(t, result.Changed)
	assert.Empty(t, fake.MutationCalls())
}

func TestDisableWithoutPollingSurfacesJobID(t *testing.T) {
	fake := emptyDomainCloud()
	fake.Accounts = []cloud.Account{
		{ID: "a-1", Name: "acme", State: "enabled", DomainID: "d-root", Domain: "ROOT"},
	}
	p := newProvisioner(fake, false)

	props := acmeProps()
	props["pollAsync"] = false
	result, _, err := p.ensure(context.Background(), props, reconcile.StateDisabled)

	require.NoError(t, err)
	assert.True(t, result.Changed)
	assert.NotEmpty(t, result.Resource["jobId"])
	assert.Zero(t, fake.CallCount("QueryAsyncJob"))
}

func TestDryRunReportsChangeWithoutMutation(t *testing.T) {
	fake := emptyDomainCloud()
	p := newProvisioner(fake, true)

	result, _, err := p.ensure(context.Background(), acmeProps(), reconcile.StatePresent)

	require.NoError(t, err)
	assert.True(t, result.Changed)
	assert.Empty(t, fake.MutationCalls())
	assert.Empty(t, fake.Accounts)
}

func TestEnsureReconcilesTags(t *testing.T) {
	fake := emptyDomainCloud()
	fake.Accounts = []cloud.Account{
		{ID: "a-1", Name: "acme", State: "enabled", DomainID: "d-root", Domain: "ROOT"},
	}
	fake.ResourceTags["a-1"] = []cloud.Tag{{Key: "env", Value: "staging"}}
	p := newProvisioner(fake, false)

	props := acmeProps()
	props["tags"] = map[string]interface{}{"env": "prod"}
	result, _, err := p.ensure(context.Background(), props, reconcile.StatePresent)

	require.NoError(t, err)
	assert.True(t, result.Changed)
	assert.Equal(t, []string{"DeleteTags", "CreateTags"}, fake.MutationCalls())
	assert.Equal(t, map[string]string{"env": "prod"}, result.Resource["tags"])
}

func TestCreateOperationEndToEnd(t *testing.T) {
	fake := emptyDomainCloud()
	p := newProvisioner(fake, false)

	props, err := json.Marshal(acmeProps())
	require.NoError(t, err)

	res, err := p.Create(context.Background(), &resource.CreateRequest{Properties: props})

	require.NoError(t, err)
	require.NotNil(t, res.ProgressResult)
	assert.Equal(t, resource.OperationStatusSuccess, res.ProgressResult.OperationStatus)
	assert.NotEmpty(t, res.ProgressResult.NativeID)

	var reported map[string]interface{}
	require.NoError(t, json.Unmarshal(res.ProgressResult.ResourceProperties, &reported))
	assert.Equal(t, "acme", reported["name"])
	assert.Equal(t, "enabled", reported["state"])
}

func TestDeleteMissingAccountIsSuccess(t *testing.T) {
	fake := emptyDomainCloud()
	p := newProvisioner(fake, false)

	res, err := p.Delete(context.Background(), &resource.DeleteRequest{NativeID: "a-gone"})

	require.NoError(t, err)
	assert.Equal(t, resource.OperationStatusSuccess, res.ProgressResult.OperationStatus)
	assert.Empty(t, fake.MutationCalls())
}

func TestListDiscoversAccountIDs(t *testing.T) {
	fake := emptyDomainCloud()
	fake.Accounts = []cloud.Account{
		{ID: "a-1", Name: "acme", DomainID: "d-root"},
		{ID: "a-2", Name: "globex", DomainID: "d-root"},
	}
	p := newProvisioner(fake, false)

	res, err := p.List(context.Background(), &resource.ListRequest{})

	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a-1", "a-2"}, res.NativeIDs)
}
