// Package services holds the use cases behind the API: account
// registration, post submission and the caption catalog.
package services

import (
	"errors"

	"instagram-automation/internal/apperr"
	"instagram-automation/internal/store"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// storeError classifies a store failure for the HTTP layer.
func storeError(op, what string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return apperr.NotFound(op, what+" not found")
	case errors.Is(err, store.ErrDuplicate):
		return apperr.New(apperr.KindConflict, op, what+" already exists")
	case errors.Is(err, store.ErrStaleTransition):
		return apperr.Wrap(apperr.KindConflict, op, err)
	default:
		return apperr.Wrap(apperr.KindStorage, op, err)
	}
}

func parseID(op, what, hex string) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(hex)
	if err != nil {
		return primitive.NilObjectID, apperr.Newf(apperr.KindValidation, op, "invalid %s id %q", what, hex)
	}
	return id, nil
}
