// © 2026 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package tags

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platform-engineering-labs/formae-plugin-cloudstack/pkg/cloud"
	"github.com/platform-engineering-labs/formae-plugin-cloudstack/pkg/jobs"
	"github.com/platform-engineering-labs/formae-plugin-cloudstack/pkg/testutil"
)

func TestDiffSets(t *testing.T) {
	existing := []cloud.Tag{
		{Key: "env", Value: "staging"},
		{Key: "team", Value: "infra"},
	}
	wanted := []cloud.Tag{
		{Key: "env", Value: "prod"},
		{Key: "team", Value: "infra"},
		{Key: "owner", Value: "alice"},
	}

	toRemove, toAdd := DiffSets(existing, wanted)

	assert.Equal(t, []cloud.Tag{{Key: "env", Value: "staging"}}, toRemove,
		"a changed value is a delete of the old pair")
	assert.Equal(t, []cloud.Tag{{Key: "env", Value: "prod"}, {Key: "owner", Value: "alice"}}, toAdd)
}

func TestReconcileConvergesAndIsIdempotent(t *testing.T) {
	fake := testutil.NewFakeCloud()
	fake.ResourceTags["a-1"] = []cloud.Tag{{Key: "env", Value: "staging"}}
	poller := jobs.NewPoller(fake)
	r := NewReconciler(fake, poller, false)
	ctx := context.Background()

	wanted := []cloud.Tag{{Key: "env", Value: "prod"}, {Key: "owner", Value: "alice"}}

	changed, err := r.Reconcile(ctx, "a-1", "Account", fake.ResourceTags["a-1"], wanted)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.ElementsMatch(t, wanted, fake.ResourceTags["a-1"])
	assert.Equal(t, []string{"DeleteTags", "CreateTags"}, fake.MutationCalls(),
		"removal must be issued before addition")

	// Second run: the set already matches, so not a single call goes out.
	fake.Calls = nil
	changed, err = r.Reconcile(ctx, "a-1", "Account", fake.ResourceTags["a-1"], wanted)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Empty(t, fake.Calls)
}

func TestReconcileAddOnlySkipsDelete(t *testing.T) {
	fake := testutil.NewFakeCloud()
	poller := jobs.NewPoller(fake)
	r := NewReconciler(fake, poller, false)

	changed, err := r.Reconcile(context.Background(), "a-1", "Account", nil,
		[]cloud.Tag{{Key: "env", Value: "prod"}})

	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, []string{"CreateTags"}, fake.MutationCalls())
}

func TestReconcileDryRunMakesNoCalls(t *testing.T) {
	fake := testutil.NewFakeCloud()
	fake.ResourceTags["a-1"] = []cloud.Tag{{Key: "env", Value: "staging"}}
	poller := jobs.NewPoller(fake)
	r := NewReconciler(fake, poller, true)

	changed, err := r.Reconcile(context.Background(), "a-1", "Account",
		fake.ResourceTags["a-1"], []cloud.Tag{{Key: "env", Value: "prod"}})

	require.NoError(t, err)
	assert.True(t, changed, "dry run still reports the pending change")
	assert.Empty(t, fake.Calls)
	assert.Equal(t, []cloud.Tag{{Key: "env", Value: "staging"}}, fake.ResourceTags["a-1"])
}

func TestReconcileSurfacesJobFailure(t *testing.T) {
	fake := testutil.NewFakeCloud()
	fake.Errs["QueryAsyncJob"] = &cloud.JobError{JobID: "job-1", ErrorText: "tag quota exceeded"}
	poller := jobs.NewPoller(fake)
	r := NewReconciler(fake, poller, false)

	_, err := r.Reconcile(context.Background(), "a-1", "Account", nil,
		[]cloud.Tag{{Key: "env", Value: "prod"}})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "tag quota exceeded")
}
