package pkg

import (
	"testing"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

func TestIsStrongPassword(t *testing.T) {
	tests := []struct {
		password string
		want     bool
	}{
		{"Str0ng!pw", true},
		{"Aa1!aaaa", true},
		{"Aa1!aaa", false},     // too short
		{"str0ng!pw", false},   // no upper
		{"STR0NG!PW", false},   // no lower
		{"Strong!pw", false},   // no digit
		{"Str0ngpw1", false},   // no symbol
		{"", false},
		{"Ünïcödé1$", true},
	}
	for _, tt := range tests {
		if got := IsStrongPassword(tt.password); got != tt.want {
			t.Errorf("IsStrongPassword(%q) = %v; want %v", tt.password, got, tt.want)
		}
	}
}

func TestRegisterValidations(t *testing.T) {
	v := validator.New()
	if err := RegisterValidations(v); err != nil {
		t.Fatalf("RegisterValidations: %v", err)
	}

	type input struct {
		Password string `validate:"required,strongpassword"`
	}
	if err := v.Struct(input{Password: "weak"}); err == nil {
		t.Error("expected weak password to fail")
	}
	if err := v.Struct(input{Password: "Str0ng!pw"}); err != nil {
		t.Errorf("expected strong password to pass, got %v", err)
	}
}

func TestRegisterBindingValidations(t *testing.T) {
	if err := RegisterBindingValidations(); err != nil {
		t.Fatalf("RegisterBindingValidations: %v", err)
	}

	type input struct {
		Password string `binding:"required,strongpassword"`
	}
	if err := binding.Validator.ValidateStruct(input{Password: "weak"}); err == nil {
		t.Error("expected weak password to fail through gin binding")
	}
	if err := binding.Validator.ValidateStruct(input{Password: "Str0ng!pw"}); err != nil {
		t.Errorf("expected strong password to pass, got %v", err)
	}
}
