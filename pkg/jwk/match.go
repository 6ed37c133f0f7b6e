package jwk

import (
	"fmt"

	"github.com/josekit/jose/pkg/header"
	"github.com/josekit/jose/pkg/jwa"
)

// BestMatch selects the key to use when several candidates are
// offered against one header:
//
//  1. an exact "kid" match wins outright,
//  2. absent that, a candidate whose key shape matches the header's
//     algorithm family (and curve, where the algorithm constrains
//     one) wins,
//  3. absent both, the first candidate is used,
//  4. with no candidates at all, ErrKeyNotFound is reported.
//
// An algorithm value of "none" never matches any key: it reports
// ErrOperationNotAllowed regardless of the candidates, so an empty
// signature can never satisfy verification through key selection.
func BestMatch(keys []Key, params header.Parameters) (Key, error) {
	alg := params.AlgorithmOrNone()
	if alg == jwa.None {
		return nil, fmt.Errorf("%w: algorithm %q never satisfies key selection", ErrOperationNotAllowed, jwa.None)
	}

	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: no candidate keys", ErrKeyNotFound)
	}

	if kid := params.KeyID(); kid != "" {
		for _, key := range keys {
			if key.KeyID() == kid {
				return key, nil
			}
		}
	}

	for _, key := range keys {
		if Compatible(key, alg) {
			return key, nil
		}
	}

	return keys[0], nil
}

// Compatible reports whether the key's shape satisfies the
// requirements of the given algorithm: key type, curve where the
// algorithm constrains one, and algorithm binding for keys that
// declare one.
func Compatible(key Key, alg jwa.Algorithm) bool {
	req, err := jwa.KeyRequirementFor(alg)
	if err != nil {
		return false
	}

	if !shapeMatches(key, req) && (req.Alternate == nil || !shapeMatches(key, *req.Alternate)) {
		return false
	}

	// A key bound to a specific algorithm only matches that one.
	if declared, declErr := stringParameter(key.Value(), Algorithm); declErr == nil {
		if jwa.FamilyOf(declared) != jwa.FamilyOf(alg) {
			return false
		}
	}

	return true
}

// shapeMatches reports whether the key satisfies one key shape: key
// type, and curve where the shape constrains one.
func shapeMatches(key Key, req jwa.KeyRequirement) bool {
	if key.KeyType() != req.KeyType {
		return false
	}
	return req.Curve == "" || key.Curve() == req.Curve
}
