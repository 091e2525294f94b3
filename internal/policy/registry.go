package policy

import (
	"bytes"
	"encoding/json"
	"sort"

	"github.com/pkg/errors"
)

// ErrUnknownKind is returned by Decode for kinds that were never registered.
var ErrUnknownKind = errors.New("unknown operation kind")

// Factory returns a zero value of one operation, ready to be decoded into.
type Factory func() Operation

// Registry maps operation kinds to their factories.
// The transport looks operations up here by kind and decodes arguments into them.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates a registry with every built-in operation.
func NewRegistry() *Registry {
	return NewRegistryWithOperations(
		func() Operation { return &CreateUser{} },
		func() Operation { return &DeleteUser{} },
		func() Operation { return &EnableApplying{} },
		func() Operation { return &DisableApplying{} },
		func() Operation { return &CreatePolicy{} },
		func() Operation { return &DeletePolicy{} },
		func() Operation { return &EnablePolicy{} },
		func() Operation { return &DisablePolicy{} },
		func() Operation { return &RenamePolicy{} },
		func() Operation { return &IncrementProtector{} },
		func() Operation { return &DecrementProtector{} },
		func() Operation { return &LockPolicy{} },
		func() Operation { return &UnlockPolicy{} },
		func() Operation { return &AddPolicyRule{} },
		func() Operation { return &DeletePolicyRule{} },
		func() Operation { return &ChangePolicyRuleActivator{} },
		func() Operation { return &CreateEnforcer{} },
		func() Operation { return &DeleteEnforcer{} },
		func() Operation { return &EnableEnforcer{} },
		func() Operation { return &DisableEnforcer{} },
		func() Operation { return &AddEnforcerRule{} },
		func() Operation { return &DeleteEnforcerRule{} },
		func() Operation { return &ChangeEnforcerRuleActivator{} },
		func() Operation { return &IncrementRuleEnabler{} },
		func() Operation { return &DecrementRuleEnabler{} },
	)
}

// NewRegistryWithOperations creates a registry with custom operations (for testing).
func NewRegistryWithOperations(factories ...Factory) *Registry {
	r := &Registry{
		factories: make(map[string]Factory),
	}
	for _, f := range factories {
		r.Register(f)
	}
	return r
}

// Register adds an operation factory under the kind of the operation it builds.
func (r *Registry) Register(f Factory) {
	r.factories[f().Kind()] = f
}

// Decode builds the operation registered under kind from its JSON arguments.
// Unknown fields are rejected.
func (r *Registry) Decode(kind string, args []byte) (Operation, error) {
	f, ok := r.factories[kind]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownKind, "kind %q", kind)
	}
	op := f()
	if len(bytes.TrimSpace(args)) == 0 {
		args = []byte("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(args))
	dec.DisallowUnknownFields()
	if err := dec.Decode(op); err != nil {
		return nil, errors.Wrapf(err, "failed to decode %s arguments", kind)
	}
	return op, nil
}

// List returns all registered kinds in sorted order.
func (r *Registry) List() []string {
	kinds := make([]string, 0, len(r.factories))
	for kind := range r.factories {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}
