package errors

import (
	"errors"
	"testing"
)

func TestDomainError(t *testing.T) {
	t.Run("New", func(t *testing.T) {
		err := New(CodeNotFound, "template not found")
		if err.Error() != "[NOT_FOUND] template not found" {
			t.Errorf("expected [NOT_FOUND] template not found, got %s", err.Error())
		}
	})

	t.Run("Wrap", func(t *testing.T) {
		original := errors.New("zip: not a valid zip file")
		err := Wrap(original, CodeIngestion, "Invalid ZIP file format")
		expected := "[INGESTION_ERROR] Invalid ZIP file format: zip: not a valid zip file"
		if err.Error() != expected {
			t.Errorf("expected %s, got %s", expected, err.Error())
		}
	})

	t.Run("IsCode", func(t *testing.T) {
		err := New(CodeNotAllowed, "cannot-obtain not allowed")
		if !IsCode(err, CodeNotAllowed) {
			t.Error("expected IsCode to return true for CodeNotAllowed")
		}
		if IsCode(err, CodeNotFound) {
			t.Error("expected IsCode to return false for CodeNotFound")
		}
	})

	t.Run("IsCodeWithWrapped", func(t *testing.T) {
		inner := New(CodeIncomplete, "required fields missing")
		err := errorsJoin(inner)
		if !IsCode(err, CodeIncomplete) {
			t.Error("expected IsCode to see through fmt wrapping")
		}
	})

	t.Run("MessageIsVerbatim", func(t *testing.T) {
		err := AddContext(New(CodeIngestion, "Required file 'Case Statistics.csv' not found in ZIP"), CtxPath, "/tmp/a.zip")
		if got := Message(err); got != "Required file 'Case Statistics.csv' not found in ZIP" {
			t.Errorf("unexpected message %q", got)
		}
		if got := Message(errors.New("plain")); got != "plain" {
			t.Errorf("unexpected plain message %q", got)
		}
	})

	t.Run("Details", func(t *testing.T) {
		de := &DomainError{Code: CodeIncomplete, Message: "wizard incomplete"}
		de.WithDetails("a", "b")
		if got := Details(de); len(got) != 2 || got[0] != "a" || got[1] != "b" {
			t.Errorf("unexpected details %v", got)
		}
		if Details(errors.New("x")) != nil {
			t.Error("expected nil details for plain error")
		}
	})

	t.Run("AddContextWrapsPlain", func(t *testing.T) {
		err := AddContext(errors.New("disk full"), CtxOperation, "save_report")
		if !IsCode(err, CodeInternal) {
			t.Errorf("expected internal code, got %v", err)
		}
	})
}

func errorsJoin(err error) error {
	return &wrapped{err: err}
}

type wrapped struct{ err error }

func (w *wrapped) Error() string { return "outer: " + w.err.Error() }
func (w *wrapped) Unwrap() error { return w.err }
