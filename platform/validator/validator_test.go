package validator

import "testing"

type sampleRequest struct {
	Stage string `json:"stage" validate:"required,oneof=new contacted"`
	Email string `json:"email" validate:"omitempty,email"`
}

func TestFieldsUsesJSONNames(t *testing.T) {
	v := New()
	err := v.Struct(sampleRequest{Stage: "bogus", Email: "nope"})
	if err == nil {
		t.Fatalf("expected validation error")
	}

	fields := Fields(err)
	if fields["stage"] != "oneof=new contacted" {
		t.Fatalf("unexpected stage rule: %q", fields["stage"])
	}
	if fields["email"] != "email" {
		t.Fatalf("unexpected email rule: %q", fields["email"])
	}
}

func TestFieldsIgnoresOtherErrors(t *testing.T) {
	if Fields(nil) != nil {
		t.Fatalf("expected nil for nil error")
	}
}
