package enums

import "fmt"

// PackageStatus tracks a delivery package independently of its order items.
type PackageStatus string

const (
	PackageStatusPending    PackageStatus = "pending"
	PackageStatusProcessing PackageStatus = "processing"
	PackageStatusShipped    PackageStatus = "shipped"
	PackageStatusDelivered  PackageStatus = "delivered"
	PackageStatusCanceled   PackageStatus = "canceled"
)

var validPackageStatuses = []PackageStatus{
	PackageStatusPending,
	PackageStatusProcessing,
	PackageStatusShipped,
	PackageStatusDelivered,
	PackageStatusCanceled,
}

var packageStatusTransitions = map[PackageStatus][]PackageStatus{
	PackageStatusPending:    {PackageStatusProcessing, PackageStatusCanceled},
	PackageStatusProcessing: {PackageStatusShipped, PackageStatusCanceled},
	PackageStatusShipped:    {PackageStatusDelivered, PackageStatusCanceled},
}

// String implements fmt.Stringer.
func (s PackageStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known PackageStatus.
func (s PackageStatus) IsValid() bool {
	for _, candidate := range validPackageStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

func (s PackageStatus) IsTerminal() bool {
	return len(packageStatusTransitions[s]) == 0
}

// CanTransitionTo reports whether next is reachable from s in one step.
func (s PackageStatus) CanTransitionTo(next PackageStatus) bool {
	for _, candidate := range packageStatusTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// ParsePackageStatus converts raw input into a PackageStatus.
func ParsePackageStatus(value string) (PackageStatus, error) {
	for _, candidate := range validPackageStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid package status %q", value)
}
