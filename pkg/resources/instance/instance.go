// © 2026 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

// Package instance exposes read-only facts about CloudStack instances.
// Instances are created by other tooling; this provisioner only reads and
// discovers them, and rejects mutation requests.
package instance

import (
	"context"
	"fmt"

	"github.com/platform-engineering-labs/formae/pkg/model"
	"github.com/platform-engineering-labs/formae/pkg/plugin"
	"github.com/platform-engineering-labs/formae/pkg/plugin/resource"

	"github.com/platform-engineering-labs/formae-plugin-cloudstack/pkg/cloud"
	"github.com/platform-engineering-labs/formae-plugin-cloudstack/pkg/config"
	"github.com/platform-engineering-labs/formae-plugin-cloudstack/pkg/prov"
	"github.com/platform-engineering-labs/formae-plugin-cloudstack/pkg/registry"
	"github.com/platform-engineering-labs/formae-plugin-cloudstack/pkg/resources"
	"github.com/platform-engineering-labs/formae-plugin-cloudstack/pkg/scope"
)

const ResourceTypeInstance = "CloudStack::Instance"

var (
	InstanceDescriptor = plugin.ResourceDescriptor{
		Type:         ResourceTypeInstance,
		Discoverable: true,
	}

	InstanceSchema = model.Schema{
		Identifier:   "name",
		Discoverable: true,
		Fields: []string{
			"name", "domain", "account", "project", "zone", "vpc",
		},
		Hints: map[string]model.FieldHint{
			"name": {
				Required: true,
			},
		},
	}
)

// Instance provisioner. Read-only.
type Instance struct {
	API    cloud.API
	Config *config.Config
}

func init() {
	registry.Register(
		ResourceTypeInstance,
		InstanceDescriptor,
		InstanceSchema,
		func(api cloud.API, cfg *config.Config) prov.Provisioner {
			return &Instance{API: api, Config: cfg}
		},
	)
}

func facts(vm *cloud.VirtualMachine) map[string]interface{} {
	out := map[string]interface{}{
		"id":    vm.ID,
		"name":  vm.Name,
		"state": vm.State,
	}
	if vm.DisplayName != "" {
		out["displayName"] = vm.DisplayName
	}
	if vm.Created != "" {
		out["created"] = vm.Created
	}
	if vm.Account != "" {
		out["account"] = vm.Account
	}
	if vm.Domain != "" {
		out["domain"] = vm.Domain
	}
	if vm.Project != "" {
		out["project"] = vm.Project
	}
	if vm.ZoneName != "" {
		out["zone"] = vm.ZoneName
	}
	if vm.Group != "" {
		out["group"] = vm.Group
	}
	if vm.Hypervisor != "" {
		out["hypervisor"] = vm.Hypervisor
	}
	if vm.InstanceName != "" {
		out["instanceName"] = vm.InstanceName
	}
	if vm.PublicIP != "" {
		out["publicIp"] = vm.PublicIP
	}
	if vm.ServiceOffering != "" {
		out["serviceOffering"] = vm.ServiceOffering
	}
	if vm.ISO != "" {
		out["iso"] = vm.ISO
	}
	if vm.Template != "" {
		out["template"] = vm.Template
	}
	if vm.KeyPair != "" {
		out["sshKey"] = vm.KeyPair
	}
	out["passwordEnabled"] = vm.PasswordEnabled
	if vm.Password != "" {
		out["password"] = vm.Password
	}
	for _, nic := range vm.NICs {
		if nic.IsDefault {
			out["defaultIp"] = nic.IPAddress
			if nic.MACAddress != "" {
				out["macAddress"] = nic.MACAddress
			}
			break
		}
	}
	if len(vm.SecurityGroups) > 0 {
		out["securityGroups"] = vm.SecurityGroups
	}
	if len(vm.AffinityGroups) > 0 {
		groups := make([]string, 0, len(vm.AffinityGroups))
		for _, g := range vm.AffinityGroups {
			groups = append(groups, g.Name)
		}
		out["affinityGroups"] = groups
	}
	if len(vm.Tags) > 0 {
		tags := make(map[string]string, len(vm.Tags))
		for _, tag := range vm.Tags {
			tags[tag.Key] = tag.Value
		}
		out["tags"] = tags
	}
	return out
}

func readOnlyFailure(op resource.Operation, nativeID string) *resource.ProgressResult {
	return resources.NewFailureResultWithMessage(
		op,
		resource.OperationErrorCodeNotUpdatable,
		nativeID,
		"instances are read-only, provision them with dedicated tooling",
	)
}

// Create adopts an existing instance by name: the instance must already
// exist, nothing is provisioned.
func (i *Instance) Create(ctx context.Context, request *resource.CreateRequest) (*resource.CreateResult, error) {
	props, err := resources.ParseProperties(request.Properties)
	if err != nil {
		return &resource.CreateResult{
			ProgressResult: resources.NewFailureResultWithMessage(resource.OperationCreate, resource.OperationErrorCodeInvalidRequest, "", err.Error()),
		}, nil
	}

	params := resources.ScopeParams(props).WithEnvFallbacks()
	params.VM = resources.StringProp(props, "name")
	resolver := scope.NewResolver(i.API, params)
	vm, err := resolver.VirtualMachine(ctx)
	if err != nil {
		return &resource.CreateResult{
			ProgressResult: resources.FailureFromError(resource.OperationCreate, "", err),
		}, nil
	}

	propsJSON, err := resources.MarshalProperties(facts(vm))
	if err != nil {
		return &resource.CreateResult{
			ProgressResult: resources.NewFailureResultWithMessage(resource.OperationCreate, resource.OperationErrorCodeGeneralServiceException, vm.ID, err.Error()),
		}, nil
	}
	return &resource.CreateResult{
		ProgressResult: &resource.ProgressResult{
			Operation:          resource.OperationCreate,
			OperationStatus:    resource.OperationStatusSuccess,
			NativeID:           vm.ID,
			ResourceProperties: []byte(propsJSON),
		},
	}, nil
}

// Update is rejected: instance facts cannot be reconciled from here.
func (i *Instance) Update(ctx context.Context, request *resource.UpdateRequest) (*resource.UpdateResult, error) {
	return &resource.UpdateResult{
		ProgressResult: readOnlyFailure(resource.OperationUpdate, request.NativeID),
	}, nil
}

// Delete forgets the instance without touching it.
func (i *Instance) Delete(ctx context.Context, request *resource.DeleteRequest) (*resource.DeleteResult, error) {
	return &resource.DeleteResult{
		ProgressResult: resources.SuccessResult(resource.OperationDelete, request.NativeID, nil),
	}, nil
}

// Read retrieves the instance facts by native ID.
func (i *Instance) Read(ctx context.Context, request *resource.ReadRequest) (*resource.ReadResult, error) {
	vms, err := i.API.ListVirtualMachines(ctx, cloud.VMFilter{ID: request.NativeID})
	if err != nil {
		return &resource.ReadResult{
			ErrorCode: resources.MapCloudStackErrorToOperationErrorCode(err),
		}, fmt.Errorf("failed to read instance: %w", err)
	}
	if len(vms) == 0 {
		return &resource.ReadResult{
			ErrorCode: resource.OperationErrorCodeNotFound,
		}, fmt.Errorf("instance %s not found", request.NativeID)
	}

	propsJSON, err := resources.MarshalProperties(facts(&vms[0]))
	if err != nil {
		return &resource.ReadResult{
			ErrorCode: resource.OperationErrorCodeGeneralServiceException,
		}, err
	}
	return &resource.ReadResult{Properties: propsJSON}, nil
}

// List discovers instance IDs, optionally narrowed by domain, account or
// zone.
func (i *Instance) List(ctx context.Context, request *resource.ListRequest) (*resource.ListResult, error) {
	filter := cloud.VMFilter{}
	if request.AdditionalProperties != nil {
		filter.DomainID = request.AdditionalProperties["domainId"]
		filter.Account = request.AdditionalProperties["account"]
		filter.ZoneID = request.AdditionalProperties["zoneId"]
	}

	vms, err := i.API.ListVirtualMachines(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list instances: %w", err)
	}
	ids := make([]string, 0, len(vms))
	for _, vm := range vms {
		ids = append(ids, vm.ID)
	}
	return &resource.ListResult{NativeIDs: ids}, nil
}

// Status reports completion: reads finish synchronously.
func (i *Instance) Status(ctx context.Context, request *resource.StatusRequest) (*resource.StatusResult, error) {
	return &resource.StatusResult{
		ProgressResult: &resource.ProgressResult{
			Operation:       resource.OperationCheckStatus,
			OperationStatus: resource.OperationStatusSuccess,
			RequestID:       request.RequestID,
		},
	}, nil
}
