package config

import (
	"strings"
	"testing"
	"time"
)

func TestValidatorRequireNonEmpty(t *testing.T) {
	tests := []struct {
		name      string
		value     string
		wantError bool
	}{
		{name: "non-empty value", value: "valid", wantError: false},
		{name: "empty value", value: "", wantError: true},
		{name: "whitespace only", value: "   ", wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewValidator()
			v.RequireNonEmpty("test_field", tt.value)
			if got := v.HasErrors(); got != tt.wantError {
				t.Errorf("HasErrors() = %v, want %v", got, tt.wantError)
			}
		})
	}
}

func TestValidatorRequirePositiveDuration(t *testing.T) {
	v := NewValidator()
	v.RequirePositiveDuration("ok", time.Second)
	if v.HasErrors() {
		t.Fatal("positive duration should pass")
	}
	v.RequirePositiveDuration("zero", 0)
	if !v.HasErrors() || v.Errors()[0].Field != "zero" {
		t.Fatalf("expected error for zero duration, got %v", v.Errors())
	}
}

func TestValidatorValidateOneOf(t *testing.T) {
	v := NewValidator()
	v.ValidateOneOf("transport", "command", "command", "streamable")
	if v.HasErrors() {
		t.Fatal("allowed value rejected")
	}
	v.ValidateOneOf("transport", "carrier-pigeon", "command", "streamable")
	if !v.HasErrors() {
		t.Fatal("expected rejection of unknown value")
	}
}

func TestValidatorErrorCombinesMessages(t *testing.T) {
	v := NewValidator()
	v.RequireNonEmpty("a", "").RequirePositive("b", 0)

	err := v.Error()
	if err == nil {
		t.Fatal("expected combined error")
	}
	if !strings.Contains(err.Error(), "a: value cannot be empty") || !strings.Contains(err.Error(), "b: value must be positive") {
		t.Fatalf("unexpected message: %v", err)
	}
	if NewValidator().Error() != nil {
		t.Fatal("empty validator should return nil")
	}
}

func TestValidateLLMConfig(t *testing.T) {
	if err := ValidateLLMConfig("key", "gemini-2.0-flash-001", 0.7, 2048); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ValidateLLMConfig("", "model", 3, 0); err == nil {
		t.Fatal("expected error for invalid llm config")
	}
}
