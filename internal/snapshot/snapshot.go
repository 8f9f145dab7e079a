// Package snapshot defines the full-dataset export format and the checks an
// import must pass before it reaches the primary store.
package snapshot

import (
	"bytes"
	"encoding/json"
	"errors"
	"slices"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/smallbiznis/splitpay/internal/domain"
)

// CurrentVersion is the version written by Build. Version 1 snapshots carry
// no limit history.
const CurrentVersion = 2

var supportedVersions = []int{1, 2}

// Snapshot is a full copy of the five collections.
type Snapshot struct {
	Version       int                   `json:"version"`
	ExportedAt    time.Time             `json:"exportedAt"`
	Orders        []domain.Order        `json:"orders" validate:"dive"`
	Payments      []domain.Payment      `json:"payments" validate:"dive"`
	Platforms     []domain.Platform     `json:"platforms" validate:"dive"`
	Subscriptions []domain.Subscription `json:"subscriptions" validate:"dive"`
	LimitHistory  []domain.LimitChange  `json:"limitHistory,omitempty" validate:"dive"`
}

// HasOrderData reports whether the snapshot holds any orders or payments.
func (s *Snapshot) HasOrderData() bool {
	return s != nil && (len(s.Orders) > 0 || len(s.Payments) > 0)
}

// Build assembles a current-version snapshot. Nil collections become empty
// arrays in the encoded form.
func Build(exportedAt time.Time, orders []domain.Order, payments []domain.Payment, platforms []domain.Platform, subscriptions []domain.Subscription, limits []domain.LimitChange) *Snapshot {
	return &Snapshot{
		Version:       CurrentVersion,
		ExportedAt:    exportedAt.UTC(),
		Orders:        nonNil(orders),
		Payments:      nonNil(payments),
		Platforms:     nonNil(platforms),
		Subscriptions: nonNil(subscriptions),
		LimitHistory:  nonNil(limits),
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// IsSupportedVersion reports whether v can be imported.
func IsSupportedVersion(v int) bool {
	return slices.Contains(supportedVersions, v)
}

var requiredCollections = []string{"orders", "payments", "platforms", "subscriptions"}

// Decode checks raw for a supported version and for every required
// collection being present and array-shaped, then decodes it. Nothing is
// partially decoded on failure.
func Decode(raw []byte) (*Snapshot, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, domain.NewValidationError("snapshot is not a JSON object: %v", err)
	}

	versionRaw, ok := fields["version"]
	if !ok {
		return nil, domain.NewValidationError("missing version")
	}
	var version int
	if err := json.Unmarshal(versionRaw, &version); err != nil {
		return nil, domain.NewValidationError("version must be an integer")
	}
	if !IsSupportedVersion(version) {
		return nil, domain.NewValidationError("unsupported version %d", version)
	}

	required := requiredCollections
	if version >= 2 {
		required = append(slices.Clone(required), "limitHistory")
	}
	for _, name := range required {
		value, ok := fields[name]
		if !ok {
			return nil, domain.NewValidationError("missing collection %q", name)
		}
		if !isArray(value) {
			return nil, domain.NewValidationError("collection %q must be an array", name)
		}
	}
	if value, ok := fields["limitHistory"]; ok && version < 2 && !isArray(value) && !isNull(value) {
		return nil, domain.NewValidationError("collection %q must be an array", "limitHistory")
	}

	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, domain.NewValidationError("field %q has wrong type %s", typeErr.Field, typeErr.Value)
		}
		return nil, domain.NewValidationError("decode snapshot: %v", err)
	}
	snap.Orders = nonNil(snap.Orders)
	snap.Payments = nonNil(snap.Payments)
	snap.Platforms = nonNil(snap.Platforms)
	snap.Subscriptions = nonNil(snap.Subscriptions)
	snap.LimitHistory = nonNil(snap.LimitHistory)
	return &snap, nil
}

func isArray(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '['
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// Validator runs the semantic checks on a decoded snapshot.
type Validator struct {
	validate *validator.Validate
}

func NewValidator() *Validator {
	return &Validator{validate: validator.New(validator.WithRequiredStructEnabled())}
}

// Validate checks the version, per-record fields, key uniqueness and that
// every payment references an order in the same snapshot.
func (v *Validator) Validate(snap *Snapshot) error {
	if snap == nil {
		return domain.NewValidationError("snapshot is empty")
	}
	if !IsSupportedVersion(snap.Version) {
		return domain.NewValidationError("unsupported version %d", snap.Version)
	}
	if err := v.validate.Struct(snap); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return domain.NewValidationError("invalid field %s: failed %q", fe.Namespace(), fe.Tag())
		}
		return domain.NewValidationError("invalid snapshot: %v", err)
	}

	if dup := firstDuplicate(snap.Orders, func(o domain.Order) string { return o.ID }); dup != "" {
		return domain.NewValidationError("duplicate order id %q", dup)
	}
	if dup := firstDuplicate(snap.Payments, func(p domain.Payment) string { return p.ID }); dup != "" {
		return domain.NewValidationError("duplicate payment id %q", dup)
	}
	if dup := firstDuplicate(snap.Platforms, func(p domain.Platform) string { return p.ID }); dup != "" {
		return domain.NewValidationError("duplicate platform id %q", dup)
	}
	if dup := firstDuplicate(snap.Subscriptions, func(s domain.Subscription) string { return s.PlatformID }); dup != "" {
		return domain.NewValidationError("duplicate subscription platform id %q", dup)
	}
	if dup := firstDuplicate(snap.LimitHistory, func(l domain.LimitChange) string { return l.ID }); dup != "" {
		return domain.NewValidationError("duplicate limit change id %q", dup)
	}

	orderIDs := make(map[string]struct{}, len(snap.Orders))
	for _, o := range snap.Orders {
		orderIDs[o.ID] = struct{}{}
	}
	orphaned := 0
	for _, p := range snap.Payments {
		if _, ok := orderIDs[p.OrderID]; !ok {
			orphaned++
		}
	}
	if orphaned > 0 {
		return &domain.ValidationError{
			Reason:   "payments reference orders missing from the snapshot",
			Orphaned: orphaned,
		}
	}
	return nil
}

// Parse decodes raw and validates the result.
func (v *Validator) Parse(raw []byte) (*Snapshot, error) {
	snap, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	if err := v.Validate(snap); err != nil {
		return nil, err
	}
	return snap, nil
}

func firstDuplicate[T any](items []T, key func(T) string) string {
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		k := key(item)
		if _, ok := seen[k]; ok {
			return k
		}
		seen[k] = struct{}{}
	}
	return ""
}
