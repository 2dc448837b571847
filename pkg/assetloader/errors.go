package assetloader

import (
	"errors"
)

var (
	// ErrModelMetaUnavailable is returned when no location yields model metadata
	ErrModelMetaUnavailable = errors.New(`model meta cannot be loaded, please make sure "zenstack generate" has been run`)

	// ErrPolicyUnavailable is returned when no location yields the policy definition
	ErrPolicyUnavailable = errors.New(
		`policy definition cannot be loaded from default location, please make sure "zenstack generate" has been run`)

	// ErrZodSchemasUnavailable is returned by Load when schemas were
	// requested from the default location and none could be resolved
	ErrZodSchemasUnavailable = errors.New("unable to load zod schemas from default location")
)

// UnavailableError reports that every resolution attempt for an asset failed.
// It matches its sentinel with errors.Is and keeps the last attempt's error.
type UnavailableError struct {
	// Asset is the asset base name
	Asset string

	// Cause is the error of the last resolution attempt
	Cause error
}

func (e *UnavailableError) Error() string {
	return e.sentinel().Error()
}

// Unwrap exposes both the sentinel and the last attempt's error
func (e *UnavailableError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.sentinel()}
	}
	return []error{e.sentinel(), e.Cause}
}

func (e *UnavailableError) sentinel() error {
	switch e.Asset {
	case ModelMetaName:
		return ErrModelMetaUnavailable
	case PolicyName:
		return ErrPolicyUnavailable
	default:
		return ErrZodSchemasUnavailable
	}
}

func unavailable(asset string, cause error) error {
	return &UnavailableError{Asset: asset, Cause: cause}
}
