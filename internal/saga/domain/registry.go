package domain

import (
	"fmt"
	"sort"
)

const (
	OrderFulfillment = "order-fulfillment"
	VendorOnboarding = "vendor-onboarding"
)

const defaultStepTimeoutMs = 30000

func step(name, service, action, compensation string, retries int) StepDefinition {
	return StepDefinition{
		Name:         name,
		Service:      service,
		Action:       action,
		Compensation: compensation,
		TimeoutMs:    defaultStepTimeoutMs,
		Retries:      retries,
	}
}

// DefaultDefinitions es el catálogo de sagas del marketplace.
func DefaultDefinitions() []Definition {
	return []Definition{
		{
			Name:    OrderFulfillment,
			Version: "1",
			Steps: []StepDefinition{
				step("reserve-inventory", "inventory-service", "reserve", "release", 3),
				step("process-payment", "payment-service", "charge", "refund", 3),
				step("create-shipment", "shipping-service", "create", "cancel", 3),
				step("notify-customer", "notification-service", "send", "", 1),
			},
			CompensationOrder: []string{"notify-customer", "create-shipment", "process-payment", "reserve-inventory"},
		},
		{
			Name:    VendorOnboarding,
			Version: "1",
			Steps: []StepDefinition{
				step("verify-documents", "kyc-service", "verify", "", 3),
				step("create-store", "store-service", "create", "delete", 3),
				step("setup-payouts", "payout-service", "setup", "teardown", 3),
				step("activate-vendor", "vendor-service", "activate", "deactivate", 3),
			},
			CompensationOrder: []string{"activate-vendor", "setup-payouts", "create-store", "verify-documents"},
		},
	}
}

// DefinitionRegistry es el catálogo de sagas de sólo lectura.
type DefinitionRegistry struct {
	defs map[string]Definition
}

func NewDefinitionRegistry(defs ...Definition) (*DefinitionRegistry, error) {
	r := &DefinitionRegistry{defs: make(map[string]Definition, len(defs))}
	for _, d := range defs {
		if err := d.Validate(); err != nil {
			return nil, err
		}
		if _, dup := r.defs[d.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate saga %s", ErrInvalidDefinition, d.Name)
		}
		r.defs[d.Name] = d
	}
	return r, nil
}

func (r *DefinitionRegistry) Get(name string) (Definition, bool) {
	d, ok := r.defs[name]
	return d, ok
}

// All returns the definitions sorted by name.
func (r *DefinitionRegistry) All() []Definition {
	out := make([]Definition, 0, len(r.defs))
	for _, d := range r.defs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
