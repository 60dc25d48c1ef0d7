// © 2026 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

// Package nic manages secondary guest IPs on an instance NIC. The NIC is
// selected by network, falling back to the instance's default NIC.
package nic

import (
	"context"
	"fmt"
	"strings"

	"github.com/platform-engineering-labs/formae/pkg/model"
	"github.com/platform-engineering-labs/formae/pkg/plugin"
	"github.com/platform-engineering-labs/formae/pkg/plugin/resource"

	"github.com/platform-engineering-labs/formae-plugin-cloudstack/pkg/cloud"
	"github.com/platform-engineering-labs/formae-plugin-cloudstack/pkg/config"
	"github.com/platform-engineering-labs/formae-plugin-cloudstack/pkg/jobs"
	"github.com/platform-engineering-labs/formae-plugin-cloudstack/pkg/prov"
	"github.com/platform-engineering-labs/formae-plugin-cloudstack/pkg/reconcile"
	"github.com/platform-engineering-labs/formae-plugin-cloudstack/pkg/registry"
	"github.com/platform-engineering-labs/formae-plugin-cloudstack/pkg/resources"
	"github.com/platform-engineering-labs/formae-plugin-cloudstack/pkg/scope"
)

const ResourceTypeNIC = "CloudStack::NicSecondaryIP"

var (
	NICDescriptor = plugin.ResourceDescriptor{
		Type:         ResourceTypeNIC,
		Discoverable: false,
	}

	NICSchema = model.Schema{
		Identifier:   "vmGuestIP",
		Discoverable: false,
		Fields: []string{
			"virtualMachine", "network", "vmGuestIP", "state", "pollAsync",
			"domain", "account", "project", "zone", "vpc",
		},
		Hints: map[string]model.FieldHint{
			"virtualMachine": {
				Required:   true,
				CreateOnly: true,
			},
			"network": {
				CreateOnly: true,
			},
		},
	}
)

// NIC provisioner
type NIC struct {
	API    cloud.API
	Config *config.Config
	poller *jobs.Poller
}

func init() {
	registry.Register(
		ResourceTypeNIC,
		NICDescriptor,
		NICSchema,
		func(api cloud.API, cfg *config.Config) prov.Provisioner {
			return &NIC{API: api, Config: cfg, poller: jobs.NewPoller(api)}
		},
	)
}

// ensure converges the secondary IP toward the desired state and returns the
// outcome plus the assignment's native ID.
func (n *NIC) ensure(ctx context.Context, props map[string]interface{}, desired reconcile.State) (*reconcile.Result, string, error) {
	if resources.StringProp(props, "virtualMachine") == "" {
		return nil, "", &reconcile.MissingFieldsError{Fields: []string{"virtualMachine"}}
	}
	wantIP := resources.StringProp(props, "vmGuestIP")
	if desired == reconcile.StateAbsent && wantIP == "" {
		return nil, "", &reconcile.MissingFieldsError{Fields: []string{"vmGuestIP"}}
	}

	resolver := scope.NewResolver(n.API, resources.ScopeParams(props).WithEnvFallbacks())
	vm, err := resolver.VirtualMachine(ctx)
	if err != nil {
		return nil, "", err
	}
	nic, err := n.selectNIC(ctx, resolver, vm, resources.StringProp(props, "network"))
	if err != nil {
		return nil, "", err
	}

	result := reconcile.NewResult()
	pollAsync := resources.BoolProp(props, "pollAsync", true)
	current := findSecondaryIP(nic, wantIP)

	if desired == reconcile.StateAbsent {
		if current == nil {
			return result, "", nil
		}
		result.RecordTransition("vmGuestIP", current.IPAddress, nil)
		if n.Config.DryRun {
			return result, nativeID(vm, nic, current), nil
		}
		jobID, err := n.API.RemoveIPFromNIC(ctx, current.ID)
		if err != nil {
			return nil, "", err
		}
		if !pollAsync {
			result.Resource = map[string]interface{}{"jobId": jobID}
			return result, "", nil
		}
		if _, err := n.poller.Wait(ctx, jobID); err != nil {
			return nil, "", err
		}
		return result, "", nil
	}

	if current != nil {
		result.Resource = normalize(vm, nic, current)
		return result, nativeID(vm, nic, current), nil
	}

	result.RecordTransition("vmGuestIP", nil, wantIP)
	if n.Config.DryRun {
		return result, "", nil
	}

	jobID, err := n.API.AddIPToNIC(ctx, nic.ID, wantIP)
	if err != nil {
		return nil, "", err
	}
	if !pollAsync {
		// The secondary IP's ID is only known once the job finishes.
		result.Resource = map[string]interface{}{"jobId": jobID, "nicId": nic.ID}
		return result, "", nil
	}
	var sip cloud.SecondaryIP
	if err := n.poller.WaitExtract(ctx, jobID, "nicsecondaryip", &sip); err != nil {
		return nil, "", err
	}
	result.Resource = normalize(vm, nic, &sip)
	return result, nativeID(vm, nic, &sip), nil
}

// selectNIC picks the instance NIC carrying the secondary IP: the one on the
// named network, or the default NIC when no network is given.
func (n *NIC) selectNIC(ctx context.Context, resolver *scope.Resolver, vm *cloud.VirtualMachine, networkName string) (*cloud.NIC, error) {
	nics, err := n.API.ListNICs(ctx, vm.ID)
	if err != nil {
		return nil, err
	}
	if networkName == "" {
		for i := range nics {
			if nics[i].IsDefault {
				return &nics[i], nil
			}
		}
		return nil, cloud.NewNotFoundError("default nic", vm.Name)
	}

	network, err := resolver.Network(ctx)
	if err != nil {
		return nil, err
	}
	for i := range nics {
		if nics[i].NetworkID == network.ID {
			return &nics[i], nil
		}
	}
	return nil, cloud.NewNotFoundError("nic on network", networkName)
}

func findSecondaryIP(nic *cloud.NIC, ip string) *cloud.SecondaryIP {
	if ip == "" {
		return nil
	}
	for i := range nic.SecondaryIPs {
		if nic.SecondaryIPs[i].IPAddress == ip {
			return &nic.SecondaryIPs[i]
		}
	}
	return nil
}

// nativeID is a composite key: reading a secondary IP back requires knowing
// its instance and NIC.
func nativeID(vm *cloud.VirtualMachine, nic *cloud.NIC, sip *cloud.SecondaryIP) string {
	return fmt.Sprintf("%s/%s/%s", vm.ID, nic.ID, sip.ID)
}

func parseNativeID(id string) (vmID, nicID, sipID string, err error) {
	parts := strings.Split(id, "/")
	if len(parts) != 3 {
		return "", "", "", fmt.Errorf("invalid nativeID %q, expected vm/nic/ip", id)
	}
	return parts[0], parts[1], parts[2], nil
}

func normalize(vm *cloud.VirtualMachine, nic *cloud.NIC, sip *cloud.SecondaryIP) map[string]interface{} {
	out := map[string]interface{}{
		"id":             sip.ID,
		"vmGuestIP":      sip.IPAddress,
		"nicId":          nic.ID,
		"networkId":      nic.NetworkID,
		"virtualMachine": vm.Name,
	}
	if nic.MACAddress != "" {
		out["macAddress"] = nic.MACAddress
	}
	return out
}

// Create assigns the secondary IP, or adopts it when already assigned.
func (n *NIC) Create(ctx context.Context, request *resource.CreateRequest) (*resource.CreateResult, error) {
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

	result, id, err := n.ensure(ctx, props, state)
	if err != nil {
		return &resource.CreateResult{
			ProgressResult: resources.FailureFromError(resource.OperationCreate, "", err),
		}, nil
	}
	return &resource.CreateResult{
		ProgressResult: resources.SuccessResult(resource.OperationCreate, id, result),
	}, nil
}

// Update re-converges the assignment; secondary IPs have no updatable
// attributes beyond presence.
func (n *NIC) Update(ctx context.Context, request *resource.UpdateRequest) (*resource.UpdateResult, error) {
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

	result, id, err := n.ensure(ctx, props, state)
	if err != nil {
		return &resource.UpdateResult{
			ProgressResult: resources.FailureFromError(resource.OperationUpdate, request.NativeID, err),
		}, nil
	}
	return &resource.UpdateResult{
		ProgressResult: resources.SuccessResult(resource.OperationUpdate, id, result),
	}, nil
}

// Delete releases the secondary IP. A missing assignment is success.
func (n *NIC) Delete(ctx context.Context, request *resource.DeleteRequest) (*resource.DeleteResult, error) {
	vmID, nicID, sipID, err := parseNativeID(request.NativeID)
	if err != nil {
		return &resource.DeleteResult{
			ProgressResult: resources.NewFailureResultWithMessage(resource.OperationDelete, resource.OperationErrorCodeInvalidRequest, request.NativeID, err.Error()),
		}, nil
	}

	nics, err := n.API.ListNICs(ctx, vmID)
	if err != nil {
		if cloud.IsNotFound(err) {
			return &resource.DeleteResult{
				ProgressResult: resources.SuccessResult(resource.OperationDelete, request.NativeID, nil),
			}, nil
		}
		return &resource.DeleteResult{
			ProgressResult: resources.FailureFromError(resource.OperationDelete, request.NativeID, err),
		}, nil
	}

	exists := false
	for _, nic := range nics {
		if nic.ID != nicID {
			continue
		}
		for _, sip := range nic.SecondaryIPs {
			if sip.ID == sipID {
				exists = true
			}
		}
	}
	if !exists {
		return &resource.DeleteResult{
			ProgressResult: resources.SuccessResult(resource.OperationDelete, request.NativeID, nil),
		}, nil
	}

	if !n.Config.DryRun {
		jobID, err := n.API.RemoveIPFromNIC(ctx, sipID)
		if err != nil {
			return &resource.DeleteResult{
				ProgressResult: resources.FailureFromError(resource.OperationDelete, request.NativeID, err),
			}, nil
		}
		if _, err := n.poller.Wait(ctx, jobID); err != nil {
			return &resource.DeleteResult{
				ProgressResult: resources.FailureFromError(resource.OperationDelete, request.NativeID, err),
			}, nil
		}
	}
	return &resource.DeleteResult{
		ProgressResult: resources.SuccessResult(resource.OperationDelete, request.NativeID, nil),
	}, nil
}

// Read retrieves the assignment by its composite native ID.
func (n *NIC) Read(ctx context.Context, request *resource.ReadRequest) (*resource.ReadResult, error) {
	vmID, nicID, sipID, err := parseNativeID(request.NativeID)
	if err != nil {
		return &resource.ReadResult{
			ErrorCode: resource.OperationErrorCodeInvalidRequest,
		}, err
	}

	vms, err := n.API.ListVirtualMachines(ctx, cloud.VMFilter{ID: vmID})
	if err != nil {
		return &resource.ReadResult{
			ErrorCode: resources.MapCloudStackErrorToOperationErrorCode(err),
		}, fmt.Errorf("failed to read instance: %w", err)
	}
	if len(vms) == 0 {
		return &resource.ReadResult{
			ErrorCode: resource.OperationErrorCodeNotFound,
		}, fmt.Errorf("virtual machine %s not found", vmID)
	}
	vm := vms[0]

	nics, err := n.API.ListNICs(ctx, vmID)
	if err != nil {
		return &resource.ReadResult{
			ErrorCode: resources.MapCloudStackErrorToOperationErrorCode(err),
		}, fmt.Errorf("failed to read nics: %w", err)
	}
	for i := range nics {
		if nics[i].ID != nicID {
			continue
		}
		for j := range nics[i].SecondaryIPs {
			if nics[i].SecondaryIPs[j].ID == sipID {
				propsJSON, err := resources.MarshalProperties(normalize(&vm, &nics[i], &nics[i].SecondaryIPs[j]))
				if err != nil {
					return &resource.ReadResult{
						ErrorCode: resource.OperationErrorCodeGeneralServiceException,
					}, err
				}
				return &resource.ReadResult{Properties: propsJSON}, nil
			}
		}
	}
	return &resource.ReadResult{
		ErrorCode: resource.OperationErrorCodeNotFound,
	}, fmt.Errorf("secondary IP %s not found", sipID)
}

// List enumerates secondary IPs of one instance, named via the additional
// properties. Without an instance there is nothing to enumerate.
func (n *NIC) List(ctx context.Context, request *resource.ListRequest) (*resource.ListResult, error) {
	if request.AdditionalProperties == nil {
		return &resource.ListResult{}, nil
	}
	vmID, ok := request.AdditionalProperties["virtualMachineId"]
	if !ok || vmID == "" {
		return &resource.ListResult{}, nil
	}

	vms, err := n.API.ListVirtualMachines(ctx, cloud.VMFilter{ID: vmID})
	if err != nil || len(vms) == 0 {
		return nil, fmt.Errorf("failed to list instance %s: %w", vmID, err)
	}
	nics, err := n.API.ListNICs(ctx, vmID)
	if err != nil {
		return nil, fmt.Errorf("failed to list nics: %w", err)
	}
	var ids []string
	for i := range nics {
		for j := range nics[i].SecondaryIPs {
			ids = append(ids, nativeID(&vms[0], &nics[i], &nics[i].SecondaryIPs[j]))
		}
	}
	return &resource.ListResult{NativeIDs: ids}, nil
}

// Status reports completion: job waits happen inside the mutating
// operations.
func (n *NIC) Status(ctx context.Context, request *resource.StatusRequest) (*resource.StatusResult, error) {
	return &resource.StatusResult{
		ProgressResult: &resource.ProgressResult{
			Operation:       resource.OperationCheckStatus,
			OperationStatus: resource.OperationStatusSuccess,
			RequestID:       request.RequestID,
		},
	}, nil
}
