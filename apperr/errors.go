package apperr

import (
	"errors"
	"fmt"
)

// ErrInvalidDateFormat wird geliefert, wenn ein Datum in keinem der unterstützten Formate vorliegt.
var ErrInvalidDateFormat = errors.New("invalid date format")

// ValidationError beschreibt eine fachlich ungültige Eingabe (z.B. ein Hecho ohne Titel).
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	msg := e.Message
	if e.Field != "" {
		msg = e.Field + ": " + msg
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func NewValidation(field, msg string) *ValidationError {
	return &ValidationError{Field: field, Message: msg}
}

func NewValidationWrap(field, msg string, err error) *ValidationError {
	return &ValidationError{Field: field, Message: msg, Err: err}
}

// NotFoundError signalisiert, dass eine Entität (Colección, Hecho, ...) nicht existiert.
type NotFoundError struct {
	Entity string
	Key    string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.Key)
}

func NewNotFound(entity string, key any) *NotFoundError {
	return &NotFoundError{Entity: entity, Key: fmt.Sprint(key)}
}

// StorageError kapselt Fehler der Persistenzschicht. Op benennt die fehlgeschlagene Operation.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return "storage " + e.Op + ": " + e.Err.Error()
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// WrapStorage liefert nil für nil, sonst einen StorageError. Bereits gewrappte Fehler bleiben unverändert.
func WrapStorage(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
