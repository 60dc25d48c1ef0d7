// © 2026 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

// Package cluster manages CloudStack host clusters: presence, the updatable
// attribute set, and the Enabled/Disabled allocation state.
package cluster

import (
	"context"
	"fmt"

	"github.com/platform-engineering-labs/formae/pkg/model"
	"github.com/platform-engineering-labs/formae/pkg/plugin"
	"github.com/platform-engineering-labs/formae/pkg/plugin/resource"

	"github.com/platform-engineering-labs/formae-plugin-cloudstack/pkg/cloud"
	"github.com/platform-engineering-labs/formae-plugin-cloudstack/pkg/config"
	"github.com/platform-engineering-labs/formae-plugin-cloudstack/pkg/diff"
	"github.com/platform-engineering-labs/formae-plugin-cloudstack/pkg/prov"
	"github.com/platform-engineering-labs/formae-plugin-cloudstack/pkg/reconcile"
	"github.com/platform-engineering-labs/formae-plugin-cloudstack/pkg/registry"
	"github.com/platform-engineering-labs/formae-plugin-cloudstack/pkg/resources"
	"github.com/platform-engineering-labs/formae-plugin-cloudstack/pkg/scope"
)

const ResourceTypeCluster = "CloudStack::Cluster"

// updatableFields is the subset of cluster attributes updateCluster accepts.
var updatableFields = []string{"name", "clusterType", "hypervisor", "allocationState"}

var (
	ClusterDescriptor = plugin.ResourceDescriptor{
		Type:         ResourceTypeCluster,
		Discoverable: true,
	}

	ClusterSchema = model.Schema{
		Identifier:   "name",
		Discoverable: true,
		Fields: []string{
			"name", "zone", "pod", "clusterType", "hypervisor", "state",
			"url", "username", "password",
			"guestVSwitchName", "guestVSwitchType", "publicVSwitchName", "publicVSwitchType",
			"vsmIPAddress", "vsmUsername", "vsmPassword",
			"ovm3Cluster", "ovm3Pool", "ovm3VIP",
		},
		Hints: map[string]model.FieldHint{
			"name": {
				Required: true,
			},
			"zone": {
				CreateOnly: true,
			},
			"pod": {
				CreateOnly: true,
			},
			"url": {
				CreateOnly: true,
			},
			"username": {
				CreateOnly: true,
			},
			"password": {
				CreateOnly: true,
			},
		},
	}
)

// Cluster provisioner
type Cluster struct {
	API    cloud.API
	Config *config.Config
	differ *diff.Differ
}

func init() {
	registry.Register(
		ResourceTypeCluster,
		ClusterDescriptor,
		ClusterSchema,
		func(api cloud.API, cfg *config.Config) prov.Provisioner {
			return &Cluster{API: api, Config: cfg, differ: diff.New()}
		},
	)
}

// ensure converges the cluster toward the desired state.
func (c *Cluster) ensure(ctx context.Context, props map[string]interface{}, desired reconcile.State) (*reconcile.Result, string, error) {
	name := resources.StringProp(props, "name")
	if name == "" {
		return nil, "", &reconcile.MissingFieldsError{Fields: []string{"name"}}
	}

	current, err := c.lookup(ctx, name)
	if err != nil {
		return nil, "", err
	}

	result := reconcile.NewResult()

	if desired == reconcile.StateAbsent {
		if current == nil {
			return result, "", nil
		}
		result.RecordTransition("state", current.AllocationState, "absent")
		if c.Config.DryRun {
			return result, current.ID, nil
		}
		if err := c.API.DeleteCluster(ctx, current.ID); err != nil {
			return nil, "", err
		}
		return result, "", nil
	}

	if current == nil {
		current, err = c.create(ctx, props, name, desired, result)
		if err != nil {
			return nil, "", err
		}
		if current == nil {
			// dry run
			return result, "", nil
		}
		result.Resource = normalize(current)
		return result, current.ID, nil
	}

	current, err = c.update(ctx, props, current, desired, result)
	if err != nil {
		return nil, "", err
	}
	result.Resource = normalize(current)
	return result, current.ID, nil
}

// lookup finds the cluster by name. Cluster names are unique per platform,
// so the first entry is authoritative.
func (c *Cluster) lookup(ctx context.Context, name string) (*cloud.Cluster, error) {
	clusters, err := c.API.ListClusters(ctx, cloud.ClusterFilter{Name: name})
	if err != nil {
		return nil, err
	}
	if len(clusters) == 0 {
		return nil, nil
	}
	return &clusters[0], nil
}

func (c *Cluster) create(ctx context.Context, props map[string]interface{}, name string, desired reconcile.State, result *reconcile.Result) (*cloud.Cluster, error) {
	if err := reconcile.ValidateRequired(props, "clusterType"); err != nil {
		return nil, err
	}

	resolver := scope.NewResolver(c.API, resources.ScopeParams(props).WithEnvFallbacks())
	zone, err := resolver.Zone(ctx)
	if err != nil {
		return nil, err
	}
	hypervisor, err := resolver.Hypervisor(ctx, resources.StringProp(props, "hypervisor"))
	if err != nil {
		return nil, err
	}

	podID := ""
	if pod, err := resolver.Pod(ctx, resources.StringProp(props, "pod")); err != nil {
		return nil, err
	} else if pod != nil {
		podID = pod.ID
	}

	result.RecordTransition("state", nil, "present")
	if c.Config.DryRun {
		return nil, nil
	}

	return c.API.AddCluster(ctx, cloud.ClusterSpec{
		Name:              name,
		ZoneID:            zone.ID,
		PodID:             podID,
		ClusterType:       resources.StringProp(props, "clusterType"),
		Hypervisor:        hypervisor,
		AllocationState:   allocationState(desired),
		URL:               resources.StringProp(props, "url"),
		Username:          resources.StringProp(props, "username"),
		Password:          resources.StringProp(props, "password"),
		GuestVSwitchName:  resources.StringProp(props, "guestVSwitchName"),
		GuestVSwitchType:  resources.StringProp(props, "guestVSwitchType"),
		PublicVSwitchName: resources.StringProp(props, "publicVSwitchName"),
		PublicVSwitchType: resources.StringProp(props, "publicVSwitchType"),
		VSMIPAddress:      resources.StringProp(props, "vsmIPAddress"),
		VSMUsername:       resources.StringProp(props, "vsmUsername"),
		VSMPassword:       resources.StringProp(props, "vsmPassword"),
		OVM3Cluster:       resources.StringProp(props, "ovm3Cluster"),
		OVM3Pool:          resources.StringProp(props, "ovm3Pool"),
		OVM3VIP:           resources.StringProp(props, "ovm3VIP"),
	})
}

// update diffs the updatable attribute subset and issues at most one
// updateCluster call.
func (c *Cluster) update(ctx context.Context, props map[string]interface{}, current *cloud.Cluster, desired reconcile.State, result *reconcile.Result) (*cloud.Cluster, error) {
	wanted := map[string]interface{}{}
	if v := resources.StringProp(props, "clusterType"); v != "" {
		wanted["clusterType"] = v
	}
	if v := resources.StringProp(props, "hypervisor"); v != "" {
		wanted["hypervisor"] = v
	}
	if state := allocationState(desired); state != "" {
		wanted["allocationState"] = state
	}

	currentFields := map[string]interface{}{
		"name":            current.Name,
		"clusterType":     current.ClusterType,
		"hypervisor":      current.Hypervisor,
		"allocationState": current.AllocationState,
	}

	d, changed := c.differ.Compare(wanted, currentFields, updatableFields...)
	if !changed {
		return current, nil
	}
	result.MergeDiff(d)
	if c.Config.DryRun {
		return current, nil
	}

	u := cloud.ClusterUpdate{ID: current.ID}
	if v, ok := d.After["clusterType"].(string); ok {
		u.ClusterType = v
	}
	if v, ok := d.After["hypervisor"].(string); ok {
		u.Hypervisor = v
	}
	if v, ok := d.After["allocationState"].(string); ok {
		u.AllocationState = v
	}
	return c.API.UpdateCluster(ctx, u)
}

// allocationState maps the desired lifecycle state to the platform's
// allocation state, empty when present expresses no opinion.
func allocationState(desired reconcile.State) string {
	switch desired {
	case reconcile.StateEnabled:
		return "Enabled"
	case reconcile.StateDisabled:
		return "Disabled"
	default:
		return ""
	}
}

func normalize(cl *cloud.Cluster) map[string]interface{} {
	out := map[string]interface{}{
		"id":              cl.ID,
		"name":            cl.Name,
		"clusterType":     cl.ClusterType,
		"hypervisor":      cl.Hypervisor,
		"allocationState": cl.AllocationState,
		"managedState":    cl.ManagedState,
		"zone":            cl.ZoneName,
	}
	if cl.PodName != "" {
		out["pod"] = cl.PodName
	}
	if cl.MemoryOvercommitRatio != "" {
		out["memoryOvercommitRatio"] = cl.MemoryOvercommitRatio
	}
	if cl.CPUOvercommitRatio != "" {
		out["cpuOvercommitRatio"] = cl.CPUOvercommitRatio
	}
	if cl.OVM3VIP != "" {
		out["ovm3VIP"] = cl.OVM3VIP
	}
	return out
}

// Create converges the cluster to its desired state, adding it if missing.
func (c *Cluster) Create(ctx context.Context, request *resource.CreateRequest) (*resource.CreateResult, error) {
	props, err := resources.ParseProperties(request.Properties)
	if err != nil {
		return &resource.CreateResult{
			ProgressResult: resources.NewFailureResultWithMessage(resource.OperationCreate, resource.OperationErrorCodeInvalidRequest, "", err.Error()),
		}, nil
	}
	state, err := reconcile.ParseState(resources.StringProp(props, "state"))
	if err != nil {
		return &resource.CreateResult{
			ProgressResult: resources.NewFailureResultWithMessage(resource.OperationCreate, resource.OperationErrorCodeInvalidRequest, "", err.Error()),
		}, nil
	}

	result, nativeID, err := c.ensure(ctx, props, state)
	if err != nil {
		return &resource.CreateResult{
			ProgressResult: resources.FailureFromError(resource.OperationCreate, "", err),
		}, nil
	}
	return &resource.CreateResult{
		ProgressResult: resources.SuccessResult(resource.OperationCreate, nativeID, result),
	}, nil
}

// Update re-converges the cluster toward the desired properties.
func (c *Cluster) Update(ctx context.Context, request *resource.UpdateRequest) (*resource.UpdateResult, error) {
	props, err := resources.ParseProperties(request.DesiredProperties)
	if err != nil {
		return &resource.UpdateResult{
			ProgressResult: resources.NewFailureResultWithMessage(resource.OperationUpdate, resource.OperationErrorCodeInvalidRequest, request.NativeID, err.Error()),
		}, nil
	}
	state, err := reconcile.ParseState(resources.StringProp(props, "state"))
	if err != nil {
		return &resource.UpdateResult{
			ProgressResult: resources.NewFailureResultWithMessage(resource.OperationUpdate, resource.OperationErrorCodeInvalidRequest, request.NativeID, err.Error()),
		}, nil
	}

	result, nativeID, err := c.ensure(ctx, props, state)
	if err != nil {
		return &resource.UpdateResult{
			ProgressResult: resources.FailureFromError(resource.OperationUpdate, request.NativeID, err),
		}, nil
	}
	return &resource.UpdateResult{
		ProgressResult: resources.SuccessResult(resource.OperationUpdate, nativeID, result),
	}, nil
}

// Delete removes the cluster. A missing cluster is success.
func (c *Cluster) Delete(ctx context.Context, request *resource.DeleteRequest) (*resource.DeleteResult, error) {
	if err := resources.ValidateNativeID(request.NativeID); err != nil {
		return &resource.DeleteResult{
			ProgressResult: resources.NewFailureResultWithMessage(resource.OperationDelete, resource.OperationErrorCodeInvalidRequest, "", err.Error()),
		}, nil
	}

	clusters, err := c.API.ListClusters(ctx, cloud.ClusterFilter{ID: request.NativeID})
	if err != nil {
		return &resource.DeleteResult{
			ProgressResult: resources.FailureFromError(resource.OperationDelete, request.NativeID, err),
		}, nil
	}
	if len(clusters) == 0 {
		return &resource.DeleteResult{
			ProgressResult: resources.SuccessResult(resource.OperationDelete, request.NativeID, nil),
		}, nil
	}

	if !c.Config.DryRun {
		if err := c.API.DeleteCluster(ctx, request.NativeID); err != nil {
			return &resource.DeleteResult{
				ProgressResult: resources.FailureFromError(resource.OperationDelete, request.NativeID, err),
			}, nil
		}
	}
	return &resource.DeleteResult{
		ProgressResult: resources.SuccessResult(resource.OperationDelete, request.NativeID, nil),
	}, nil
}

// Read retrieves the current state of a cluster by native ID.
func (c *Cluster) Read(ctx context.Context, request *resource.ReadRequest) (*resource.ReadResult, error) {
	if err := resources.ValidateNativeID(request.NativeID); err != nil {
		return &resource.ReadResult{
			ErrorCode: resource.OperationErrorCodeInvalidRequest,
		}, err
	}

	clusters, err := c.API.ListClusters(ctx, cloud.ClusterFilter{ID: request.NativeID})
	if err != nil {
		return &resource.ReadResult{
			ErrorCode: resources.MapCloudStackErrorToOperationErrorCode(err),
		}, fmt.Errorf("failed to read cluster: %w", err)
	}
	if len(clusters) == 0 {
		return &resource.ReadResult{
			ErrorCode: resource.OperationErrorCodeNotFound,
		}, fmt.Errorf("cluster %s not found", request.NativeID)
	}

	propsJSON, err := resources.MarshalProperties(normalize(&clusters[0]))
	if err != nil {
		return &resource.ReadResult{
			ErrorCode: resource.OperationErrorCodeGeneralServiceException,
		}, err
	}
	return &resource.ReadResult{Properties: propsJSON}, nil
}

// List discovers cluster native IDs.
func (c *Cluster) List(ctx context.Context, request *resource.ListRequest) (*resource.ListResult, error) {
	clusters, err := c.API.ListClusters(ctx, cloud.ClusterFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to list clusters: %w", err)
	}
	ids := make([]string, 0, len(clusters))
	for _, cl := range clusters {
		ids = append(ids, cl.ID)
	}
	return &resource.ListResult{NativeIDs: ids}, nil
}

// Status reports completion: cluster calls are synchronous.
func (c *Cluster) Status(ctx context.Context, request *resource.StatusRequest) (*resource.StatusResult, error) {
	return &resource.StatusResult{
		ProgressResult: &resource.ProgressResult{
			Operation:       resource.OperationCheckStatus,
			OperationStatus: resource.OperationStatusSuccess,
			RequestID:       request.RequestID,
		},
	}, nil
}
