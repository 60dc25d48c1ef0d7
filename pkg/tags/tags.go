// © 2026 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

// Package tags converges the tag set of a resource toward a wanted set with
// the minimal number of mutating calls.
package tags

import (
	"context"
	"sort"

	"github.com/platform-engineering-labs/formae-plugin-cloudstack/pkg/cloud"
	"github.com/platform-engineering-labs/formae-plugin-cloudstack/pkg/jobs"
)

// DiffSets computes the exact key+value set difference between the existing
// and wanted tag sets. A changed value for an existing key shows up in both
// lists: the platform has no tag update, only delete and create.
func DiffSets(existing, wanted []cloud.Tag) (toRemove, toAdd []cloud.Tag) {
	want := make(map[cloud.Tag]bool, len(wanted))
	for _, t := range wanted {
		want[t] = true
	}
	have := make(map[cloud.Tag]bool, len(existing))
	for _, t := range existing {
		have[t] = true
	}
	for _, t := range existing {
		if !want[t] {
			toRemove = append(toRemove, t)
		}
	}
	for _, t := range wanted {
		if !have[t] {
			toAdd = append(toAdd, t)
		}
	}
	return toRemove, toAdd
}

// FromMap converts a key/value map to a tag list ordered by key.
func FromMap(m map[string]string) []cloud.Tag {
	if len(m) == 0 {
		return nil
	}
	out := make([]cloud.Tag, 0, len(m))
	for k, v := range m {
		out = append(out, cloud.Tag{Key: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// ToMap converts a tag list to a key/value map.
func ToMap(tags []cloud.Tag) map[string]string {
	out := make(map[string]string, len(tags))
	for _, t := range tags {
		out[t.Key] = t.Value
	}
	return out
}

// Reconciler applies tag set differences through the platform's batched tag
// calls, waiting for each batch's job.
type Reconciler struct {
	api    cloud.TagAPI
	poller *jobs.Poller
	dryRun bool
}

// NewReconciler builds a Reconciler. In dry-run mode differences are still
// computed and reported but no mutating call is made.
func NewReconciler(api cloud.TagAPI, poller *jobs.Poller, dryRun bool) *Reconciler {
	return &Reconciler{api: api, poller: poller, dryRun: dryRun}
}

// Reconcile converges the resource's tags to exactly wanted. Stale tags are
// removed before new ones are created so a changed value never collides with
// its old entry. Each non-empty direction is one batched call plus a job
// wait. Returns whether any mutation was (or, in dry-run, would be) needed.
func (r *Reconciler) Reconcile(ctx context.Context, resourceID, resourceType string, existing, wanted []cloud.Tag) (bool, error) {
	toRemove, toAdd := DiffSets(existing, wanted)
	if len(toRemove) == 0 && len(toAdd) == 0 {
		return false, nil
	}
	if r.dryRun {
		return true, nil
	}

	if len(toRemove) > 0 {
		jobID, err := r.api.DeleteTags(ctx, []string{resourceID}, resourceType, toRemove)
		if err != nil {
			return true, err
		}
		if _, err := r.poller.Wait(ctx, jobID); err != nil {
			return true, err
		}
	}
	if len(toAdd) > 0 {
		jobID, err := r.api.CreateTags(ctx, []string{resourceID}, resourceType, toAdd)
		if err != nil {
			return true, err
		}
		if _, err := r.poller.Wait(ctx, jobID); err != nil {
			return true, err
		}
	}
	return true, nil
}
