// Package claims defines the typed claim set produced by one login attempt
// and the extractor that maps provider-specific claim keys onto it.
package claims

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// Set is the verified claim set for a single login attempt. It is immutable
// and lives only for the duration of that request.
type Set struct {
	SubjectID       string
	AccountID       string
	GroupID         string
	ApplicationName string
	IssuedAt        int64
	ExpiresAt       int64
	Active          bool
}

// Keys names the provider claims that carry each field the engine reads.
// The group/account/subject claim keys differ per identity provider, so they
// are bound once at configuration time instead of being string-indexed at
// every use site.
type Keys struct {
	SubjectID       string
	AccountID       string
	GroupID         string
	ApplicationName string
}

// Extractor converts raw introspection responses into typed claim Sets using
// a fixed key binding.
type Extractor struct {
	keys Keys
}

// NewExtractor binds an Extractor to the configured claim keys.
func NewExtractor(keys Keys) (Extractor, error) {
	if keys.SubjectID == "" {
		return Extractor{}, errors.New("[NewExtractor] subject id claim key is required")
	}
	if keys.AccountID == "" {
		return Extractor{}, errors.New("[NewExtractor] account id claim key is required")
	}
	if keys.GroupID == "" {
		return Extractor{}, errors.New("[NewExtractor] group id claim key is required")
	}
	if keys.ApplicationName == "" {
		return Extractor{}, errors.New("[NewExtractor] application name claim key is required")
	}
	return Extractor{keys: keys}, nil
}

// FromIntrospection builds a Set from a decoded introspection response.
// Missing optional claims yield zero values; exp/iat accept any JSON number
// representation.
func (e Extractor) FromIntrospection(raw map[string]any) (Set, error) {
	exp, err := claimInt(raw, "exp")
	if err != nil {
		return Set{}, err
	}
	iat, err := claimInt(raw, "iat")
	if err != nil {
		return Set{}, err
	}

	active, _ := raw["active"].(bool)

	return Set{
		SubjectID:       claimString(raw, e.keys.SubjectID),
		AccountID:       claimString(raw, e.keys.AccountID),
		GroupID:         claimString(raw, e.keys.GroupID),
		ApplicationName: claimString(raw, e.keys.ApplicationName),
		IssuedAt:        iat,
		ExpiresAt:       exp,
		Active:          active,
	}, nil
}

func claimString(raw map[string]any, key string) string {
	value, _ := raw[key].(string)
	return value
}

func claimInt(raw map[string]any, key string) (int64, error) {
	switch v := raw[key].(type) {
	case nil:
		return 0, nil
	case float64:
		return int64(v), nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, errors.Wrapf(err, "[claimInt] claim %q is not an integer", key)
		}
		return n, nil
	case int64:
		return v, nil
	default:
		return 0, errors.Errorf("[claimInt] claim %q has unsupported type %T", key, v)
	}
}
