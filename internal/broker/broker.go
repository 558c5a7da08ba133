// Package broker is the external-collaborator broker registry: a mapping
// from BrokerId to its metadata and fee schedule, loaded from a local JSON
// file or a resty-fetched HTTP endpoint.
//
// The teacher has no equivalent package — a Polymarket market maker trades
// on a single fixed venue with one known fee structure, so there is nothing
// to register. This is grounded on the teacher's exchange.Client's resty
// wiring (internal/execution/http.go already generalizes that for order
// execution) for the HTTP loader, and on the CostFormula type already
// defined in pkg/types/audit.go for the fee schedule itself.
package broker

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"tradingcore/pkg/types"
)

// BrokerId names one broker/venue account in the registry.
type BrokerId string

// CertificationKind names a regulatory/compliance credential a broker holds.
type CertificationKind string

// Certification is one time-bounded credential.
type Certification struct {
	Kind      CertificationKind `json:"kind"`
	ValidFrom time.Time         `json:"valid_from"`
	ValidTo   *time.Time        `json:"valid_to,omitempty"`
}

// Active reports whether this certification covers instant.
func (c Certification) Active(instant time.Time) bool {
	if instant.Before(c.ValidFrom) {
		return false
	}
	return c.ValidTo == nil || instant.Before(*c.ValidTo)
}

// CostModel is a broker's fee schedule: a default CostFormula, overridden
// per instrument where the broker's schedule differs.
type CostModel struct {
	Default   types.CostFormula                      `json:"default"`
	Overrides map[types.InstrumentIndex]types.CostFormula `json:"overrides,omitempty"`
}

// Resolve returns the CostFormula to apply for instrument, using the
// override if one is registered and falling back to Default otherwise.
func (m CostModel) Resolve(instrument types.InstrumentIndex) types.CostFormula {
	if f, ok := m.Overrides[instrument]; ok {
		return f
	}
	return m.Default
}

// BrokerMetadata is one broker's registry entry.
type BrokerMetadata struct {
	Id             BrokerId        `json:"id"`
	Code           string          `json:"code,omitempty"`
	Name           string          `json:"name"`
	Certifications []Certification `json:"certifications,omitempty"`
	CostModel      CostModel       `json:"cost_model"`
}

// registryDocument is the on-disk/wire JSON schema: {"brokers": [...]}.
type registryDocument struct {
	Brokers []BrokerMetadata `json:"brokers"`
}

// Registry is an in-memory broker directory keyed by BrokerId.
type Registry struct {
	brokers map[BrokerId]BrokerMetadata
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{brokers: make(map[BrokerId]BrokerMetadata)}
}

// Load replaces the registry's contents with brokers.
func (r *Registry) Load(brokers []BrokerMetadata) {
	m := make(map[BrokerId]BrokerMetadata, len(brokers))
	for _, b := range brokers {
		m[b.Id] = b
	}
	r.brokers = m
}

// LoadFromFile reads a registryDocument from a local JSON file and loads it.
func (r *Registry) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("broker: read %s: %w", path, err)
	}
	return r.loadFromJSON(data)
}

func (r *Registry) loadFromJSON(data []byte) error {
	var doc registryDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("broker: decode registry document: %w", err)
	}
	r.Load(doc.Brokers)
	return nil
}

// Get returns the metadata for id, or false if id is not registered.
func (r *Registry) Get(id BrokerId) (BrokerMetadata, bool) {
	m, ok := r.brokers[id]
	return m, ok
}

// CostFormula resolves the CostFormula a broker applies to instrument,
// falling back to the broker's default when no per-instrument override
// exists. Returns false if the broker itself is not registered.
func (r *Registry) CostFormula(id BrokerId, instrument types.InstrumentIndex) (types.CostFormula, bool) {
	m, ok := r.brokers[id]
	if !ok {
		return types.CostFormula{}, false
	}
	return m.CostModel.Resolve(instrument), true
}

// Len reports how many brokers are currently registered.
func (r *Registry) Len() int { return len(r.brokers) }
