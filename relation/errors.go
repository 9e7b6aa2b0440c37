package relation

import "github.com/pkg/errors"

var (
	// ErrNoUniqueField is returned when a many-to-many write must upsert
	// target rows by natural key but the target declares no unique field.
	ErrNoUniqueField = errors.New("relation: no unique field configured")

	// ErrUnknownModel is returned when a relation names an unregistered model.
	ErrUnknownModel = errors.New("relation: unknown model")

	// ErrMissingKey is returned when a write needs the local key value
	// but the data does not carry it.
	ErrMissingKey = errors.New("relation: missing key value")

	// ErrInvalidPayload is returned when a relation payload has a shape
	// the relation type cannot write.
	ErrInvalidPayload = errors.New("relation: invalid payload")
)
