package errors

import (
	stdErrors "errors"
	"fmt"
	"testing"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		class     Class
		retryable bool
	}{
		{code: CodeValidation, class: ClassData},
		{code: CodeNotFound, class: ClassData},
		{code: CodeMapping, class: ClassData},
		{code: CodeConflict, class: ClassInvariant},
		{code: CodeStateConflict, class: ClassInvariant},
		{code: CodeMalformedFeed, class: ClassFatal},
		{code: CodeInternal, class: ClassTransient, retryable: true},
		{code: CodeDependency, class: ClassTransient, retryable: true},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.Class != tt.class {
			t.Fatalf("code %s expected class %s got %s", tt.code, tt.class, meta.Class)
		}
		if meta.Retryable != tt.retryable {
			t.Fatalf("code %s expected retryable %v got %v", tt.code, tt.retryable, meta.Retryable)
		}
		if meta.Summary == "" {
			t.Fatalf("code %s missing summary", tt.code)
		}
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	if meta.Class != ClassTransient || !meta.Retryable {
		t.Fatalf("expected internal metadata, got %+v", meta)
	}
}

func TestErrorConstructors(t *testing.T) {
	base := New(CodeValidation, "missing sku")
	if base.Code() != CodeValidation {
		t.Fatalf("expected validation code, got %s", base.Code())
	}
	if base.Message() != "missing sku" {
		t.Fatalf("unexpected message %q", base.Message())
	}
	if base.Details() != nil {
		t.Fatalf("details should be nil by default")
	}

	base.WithDetails(map[string]any{"field": "sku"})
	if base.Details() == nil {
		t.Fatalf("details should be preserved")
	}

	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeConflict, cause, "ctx")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("Wrap did not preserve cause")
	}
	if wrapped.Code() != CodeConflict {
		t.Fatalf("unexpected code %s", wrapped.Code())
	}
	if wrapped.Error() != "CONFLICT: ctx: boom" {
		t.Fatalf("unexpected message %q", wrapped.Error())
	}
}

func TestAsReturnsTypedError(t *testing.T) {
	err := fmt.Errorf("outer: %w", New(CodeNotFound, "no product"))
	if got := As(err); got == nil || got.Code() != CodeNotFound {
		t.Fatalf("As failed to return typed error")
	}
	if As(nil) != nil {
		t.Fatalf("As(nil) should return nil")
	}
}

func TestIsFatal(t *testing.T) {
	if !IsFatal(fmt.Errorf("listing: %w", New(CodeMalformedFeed, "bad body"))) {
		t.Fatal("malformed feed should be fatal")
	}
	if IsFatal(New(CodeDependency, "timeout")) {
		t.Fatal("dependency errors are transient")
	}
	if IsFatal(nil) {
		t.Fatal("nil is not fatal")
	}
	if !IsCode(New(CodeStateConflict, "x"), CodeStateConflict) {
		t.Fatal("IsCode should match")
	}
	if CodeOf(stdErrors.New("plain")) != CodeInternal {
		t.Fatal("untyped errors map to internal")
	}
}
