package search

import (
	"fmt"

	"github.com/proprios/search-api/internal/model"
	apperrors "github.com/proprios/search-api/pkg/errors"
)

// transitions is the closed set of legal status moves. Anything not listed
// is rejected before touching storage; storage enforces the same guard with
// a conditional update for concurrent callers.
var transitions = map[model.SearchStatus][]model.SearchStatus{
	model.SearchStatusEstimated: {model.SearchStatusValidated},
	model.SearchStatusValidated: {model.SearchStatusCompleted},
	model.SearchStatusCompleted: {model.SearchStatusEnriching},
	model.SearchStatusEnriching: {model.SearchStatusEnriched},
	model.SearchStatusEnriched:  {},
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to model.SearchStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// guardTransition converts an illegal move into the caller-facing conflict
// error naming both statuses.
func guardTransition(from, to model.SearchStatus) error {
	if CanTransition(from, to) {
		return nil
	}
	return apperrors.State(fmt.Sprintf("cannot move search from %s to %s", from, to), nil)
}
