// © 2026 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

// Package account manages the lifecycle of CloudStack accounts:
// present/absent plus the enabled/disabled/locked sub-states.
package account

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
	"github.com/platform-engineering-labs/formae-plugin-cloudstack/pkg/tags"
)

const (
	ResourceTypeAccount = "CloudStack::Account"

	// tagResourceType is the platform's resource type name for tag calls.
	tagResourceType = "Account"
)

// Account type names accepted in desired properties, mapped to the
// platform's numeric account type.
var accountTypes = map[string]int{
	"user":         0,
	"root_admin":   1,
	"domain_admin": 2,
}

var (
	AccountDescriptor = plugin.ResourceDescriptor{
		Type:         ResourceTypeAccount,
		Discoverable: true,
	}

	AccountSchema = model.Schema{
		Identifier:   "name",
		Discoverable: true,
		Fields: []string{
			"name", "domain", "state", "accountType", "email", "firstName",
			"lastName", "username", "password", "networkDomain", "timezone",
			"tags", "pollAsync",
		},
		Hints: map[string]model.FieldHint{
			"name": {
				Required:   true,
				CreateOnly: true,
			},
			"domain": {
				Required:   true,
				CreateOnly: true,
			},
			"accountType": {
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

// Account provisioner
type Account struct {
	API    cloud.API
	Config *config.Config
	poller *jobs.Poller
}

func init() {
	registry.Register(
		ResourceTypeAccount,
		AccountDescriptor,
		AccountSchema,
		func(api cloud.API, cfg *config.Config) prov.Provisioner {
			return &Account{API: api, Config: cfg, poller: jobs.NewPoller(api)}
		},
	)
}

// ensure converges the account toward the desired state and returns the
// outcome plus the account's native ID (empty after deletion).
func (a *Account) ensure(ctx context.Context, props map[string]interface{}, desired reconcile.State) (*reconcile.Result, string, error) {
	name := resources.StringProp(props, "name")
	if name == "" {
		return nil, "", &reconcile.MissingFieldsError{Fields: []string{"name"}}
	}
	if resources.StringProp(props, "domain") == "" {
		return nil, "", &scope.MissingScopeError{Kind: "account", Requires: "domain"}
	}

	resolver := scope.NewResolver(a.API, resources.ScopeParams(props).WithEnvFallbacks())
	domain, err := resolver.Domain(ctx)
	if err != nil {
		return nil, "", err
	}

	current, err := a.lookup(ctx, name, domain.ID)
	if err != nil {
		return nil, "", err
	}

	result := reconcile.NewResult()
	pollAsync := resources.BoolProp(props, "pollAsync", true)

	if desired == reconcile.StateAbsent {
		if current == nil {
			return result, "", nil
		}
		result.RecordTransition("state", current.State, "absent")
		if a.Config.DryRun {
			return result, current.ID, nil
		}
		jobID, err := a.API.DeleteAccount(ctx, current.ID)
		if err != nil {
			return nil, "", err
		}
		if !pollAsync {
			result.Resource = map[string]interface{}{"jobId": jobID}
			return result, "", nil
		}
		if _, err := a.poller.Wait(ctx, jobID); err != nil {
			return nil, "", err
		}
		return result, "", nil
	}

	if current == nil {
		current, err = a.create(ctx, props, name, domain.ID, result)
		if err != nil {
			return nil, "", err
		}
	}

	skippedJobID := ""
	if current != nil {
		current, skippedJobID, err = a.transition(ctx, current, desired, pollAsync, result)
		if err != nil {
			return nil, "", err
		}
	}

	nativeID := ""
	if current != nil {
		nativeID = current.ID
		wantedTags := tags.FromMap(resources.TagsProp(props))
		if _, hasTags := props["tags"]; hasTags {
			reconciler := tags.NewReconciler(a.API, a.poller, a.Config.DryRun)
			changed, err := reconciler.Reconcile(ctx, current.ID, tagResourceType, current.Tags, wantedTags)
			if err != nil {
				return nil, "", err
			}
			if changed {
				result.RecordTransition("tags", tags.ToMap(current.Tags), tags.ToMap(wantedTags))
				current.Tags = wantedTags
			}
		}
		result.Resource = normalize(current)
		if skippedJobID != "" {
			result.Resource["jobId"] = skippedJobID
		}
	}
	return result, nativeID, nil
}

// lookup finds the managed account by name within its domain. Name plus
// domain is the platform's uniqueness key.
func (a *Account) lookup(ctx context.Context, name, domainID string) (*cloud.Account, error) {
	accounts, err := a.API.ListAccounts(ctx, cloud.AccountFilter{Name: name, DomainID: domainID})
	if err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return nil, nil
	}
	return &accounts[0], nil
}

func (a *Account) create(ctx context.Context, props map[string]interface{}, name, domainID string, result *reconcile.Result) (*cloud.Account, error) {
	if err := reconcile.ValidateRequired(props, "email", "username", "password", "firstName", "lastName"); err != nil {
		return nil, err
	}

	accountType := 0
	if typeName := resources.StringProp(props, "accountType"); typeName != "" {
		t, ok := accountTypes[strings.ToLower(typeName)]
		if !ok {
			return nil, fmt.Errorf("unknown accountType %q, expected one of user, root_admin, domain_admin", typeName)
		}
		accountType = t
	}

	result.RecordTransition("state", nil, "present")
	if a.Config.DryRun {
		return nil, nil
	}

	return a.API.CreateAccount(ctx, cloud.AccountSpec{
		Name:          name,
		DomainID:      domainID,
		Type:          accountType,
		Email:         resources.StringProp(props, "email"),
		FirstName:     resources.StringProp(props, "firstName"),
		LastName:      resources.StringProp(props, "lastName"),
		Username:      resources.StringProp(props, "username"),
		Password:      resources.StringProp(props, "password"),
		NetworkDomain: resources.StringProp(props, "networkDomain"),
		Timezone:      resources.StringProp(props, "timezone"),
	})
}

// transition moves the account between the enabled/disabled/locked
// sub-states. Locking a disabled account is not a legal platform transition,
// so it passes through enabled first: two mutations, enable before lock.
// When pollAsync is off the disable job's ID is returned instead of waiting.
func (a *Account) transition(ctx context.Context, current *cloud.Account, desired reconcile.State, pollAsync bool, result *reconcile.Result) (*cloud.Account, string, error) {
	var target string
	lock := false
	switch desired {
	case reconcile.StateEnabled, reconcile.StateUnlocked:
		target = "enabled"
	case reconcile.StateDisabled:
		target = "disabled"
	case reconcile.StateLocked:
		target = "locked"
		lock = true
	default:
		// present only guarantees existence, not a sub-state.
		return current, "", nil
	}
	if strings.EqualFold(current.State, target) {
		return current, "", nil
	}

	result.RecordTransition("state", current.State, target)
	if a.Config.DryRun {
		return current, "", nil
	}

	if target == "enabled" {
		enabled, err := a.API.EnableAccount(ctx, current.ID, current.Name, current.DomainID)
		return enabled, "", err
	}

	if lock && strings.EqualFold(current.State, "disabled") {
		enabled, err := a.API.EnableAccount(ctx, current.ID, current.Name, current.DomainID)
		if err != nil {
			return nil, "", err
		}
		current = enabled
	}

	jobID, err := a.API.DisableAccount(ctx, current.ID, current.Name, current.DomainID, lock)
	if err != nil {
		return nil, "", err
	}
	if !pollAsync {
		updated := *current
		updated.State = target
		return &updated, jobID, nil
	}
	var updated cloud.Account
	if err := a.poller.WaitExtract(ctx, jobID, "account", &updated); err != nil {
		return nil, "", err
	}
	return &updated, "", nil
}

func normalize(acct *cloud.Account) map[string]interface{} {
	typeName := "user"
	for name, t := range accountTypes {
		if t == acct.Type {
			typeName = name
		}
	}
	out := map[string]interface{}{
		"id":          acct.ID,
		"name":        acct.Name,
		"state":       acct.State,
		"accountType": typeName,
		"domain":      acct.Domain,
		"created":     acct.Created,
	}
	if acct.NetworkDomain != "" {
		out["networkDomain"] = acct.NetworkDomain
	}
	if len(acct.Tags) > 0 {
		out["tags"] = tags.ToMap(acct.Tags)
	}
	return out
}

// Create converges the account to its desired state, creating it if missing.
func (a *Account) Create(ctx context.Context, request *resource.CreateRequest) (*resource.CreateResult, error) {
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

	result, nativeID, err := a.ensure(ctx, props, state)
	if err != nil {
		return &resource.CreateResult{
			ProgressResult: resources.FailureFromError(resource.OperationCreate, "", err),
		}, nil
	}
	return &resource.CreateResult{
		ProgressResult: resources.SuccessResult(resource.OperationCreate, nativeID, result),
	}, nil
}

// Update re-converges the account toward the desired properties.
func (a *Account) Update(ctx context.Context, request *resource.UpdateRequest) (*resource.UpdateResult, error) {
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

	result, nativeID, err := a.ensure(ctx, props, state)
	if err != nil {
		return &resource.UpdateResult{
			ProgressResult: resources.FailureFromError(resource.OperationUpdate, request.NativeID, err),
		}, nil
	}
	return &resource.UpdateResult{
		ProgressResult: resources.SuccessResult(resource.OperationUpdate, nativeID, result),
	}, nil
}

// Delete removes the account. A missing account is success: absence is the
// desired state.
func (a *Account) Delete(ctx context.Context, request *resource.DeleteRequest) (*resource.DeleteResult, error) {
	if err := resources.ValidateNativeID(request.NativeID); err != nil {
		return &resource.DeleteResult{
			ProgressResult: resources.NewFailureResultWithMessage(resource.OperationDelete, resource.OperationErrorCodeInvalidRequest, "", err.Error()),
		}, nil
	}

	accounts, err := a.API.ListAccounts(ctx, cloud.AccountFilter{ID: request.NativeID})
	if err != nil {
		return &resource.DeleteResult{
			ProgressResult: resources.FailureFromError(resource.OperationDelete, request.NativeID, err),
		}, nil
	}
	if len(accounts) == 0 {
		return &resource.DeleteResult{
			ProgressResult: resources.SuccessResult(resource.OperationDelete, request.NativeID, nil),
		}, nil
	}

	if !a.Config.DryRun {
		jobID, err := a.API.DeleteAccount(ctx, request.NativeID)
		if err != nil {
			return &resource.DeleteResult{
				ProgressResult: resources.FailureFromError(resource.OperationDelete, request.NativeID, err),
			}, nil
		}
		if _, err := a.poller.Wait(ctx, jobID); err != nil {
			return &resource.DeleteResult{
				ProgressResult: resources.FailureFromError(resource.OperationDelete, request.NativeID, err),
			}, nil
		}
	}
	return &resource.DeleteResult{
		ProgressResult: resources.SuccessResult(resource.OperationDelete, request.NativeID, nil),
	}, nil
}

// Read retrieves the current state of an account by native ID.
func (a *Account) Read(ctx context.Context, request *resource.ReadRequest) (*resource.ReadResult, error) {
	if err := resources.ValidateNativeID(request.NativeID); err != nil {
		return &resource.ReadResult{
			ErrorCode: resource.OperationErrorCodeInvalidRequest,
		}, err
	}

	accounts, err := a.API.ListAccounts(ctx, cloud.AccountFilter{ID: request.NativeID})
	if err != nil {
		return &resource.ReadResult{
			ErrorCode: resources.MapCloudStackErrorToOperationErrorCode(err),
		}, fmt.Errorf("failed to read account: %w", err)
	}
	if len(accounts) == 0 {
		return &resource.ReadResult{
			ErrorCode: resource.OperationErrorCodeNotFound,
		}, fmt.Errorf("account %s not found", request.NativeID)
	}

	propsJSON, err := resources.MarshalProperties(normalize(&accounts[0]))
	if err != nil {
		return &resource.ReadResult{
			ErrorCode: resource.OperationErrorCodeGeneralServiceException,
		}, err
	}
	return &resource.ReadResult{Properties: propsJSON}, nil
}

// List discovers account native IDs, optionally narrowed to a domain via the
// additional properties.
func (a *Account) List(ctx context.Context, request *resource.ListRequest) (*resource.ListResult, error) {
	filter := cloud.AccountFilter{}
	if request.AdditionalProperties != nil {
		if domainID, ok := request.AdditionalProperties["domainId"]; ok {
			filter.DomainID = domainID
		}
	}

	accounts, err := a.API.ListAccounts(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	ids := make([]string, 0, len(accounts))
	for _, acct := range accounts {
		ids = append(ids, acct.ID)
	}
	return &resource.ListResult{NativeIDs: ids}, nil
}

// Status reports completion: job waits happen inside the mutating
// operations, so nothing is ever left in progress.
func (a *Account) Status(ctx context.Context, request *resource.StatusRequest) (*resource.StatusResult, error) {
	return &resource.StatusResult{
		ProgressResult: &resource.ProgressResult{
			Operation:       resource.OperationCheckStatus,
			OperationStatus: resource.OperationStatusSuccess,
			RequestID:       request.RequestID,
		},
	}, nil
}
