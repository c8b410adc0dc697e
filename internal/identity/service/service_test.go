package service

import (
	"bytes"
	"context"
	"testing"

	"leadflow_backend/internal/identity/credcrypto"
	"leadflow_backend/internal/identity/repository"
	"leadflow_backend/internal/storage/memory"
	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/logger"

	"github.com/google/uuid"
)

const unexpectedErrMsg = "unexpected error: %v"

func newService(t *testing.T) (*Service, repository.User) {
	t.Helper()
	sealer, err := credcrypto.New(bytes.Repeat([]byte{3}, 32))
	if err != nil {
		t.Fatalf(unexpectedErrMsg, err)
	}
	users := memory.New().Users()
	owner := repository.User{ID: uuid.New(), Name: "Priya", Email: "priya@example.com", Role: repository.RoleOwner, IsActive: true}
	if err := users.CreateUser(context.Background(), owner); err != nil {
		t.Fatalf(unexpectedErrMsg, err)
	}
	return New(users, sealer, logger.Discard()), owner
}

func TestEnsureAgencyIsCreatedOnce(t *testing.T) {
	svc, owner := newService(t)
	ctx := context.Background()

	first, err := svc.EnsureAgency(ctx, owner)
	if err != nil {
		t.Fatalf(unexpectedErrMsg, err)
	}
	if first.Name != "Priya's Agency" {
		t.Fatalf("expected default agency name, got %q", first.Name)
	}

	again, err := svc.AgencyFor(ctx, owner.ID)
	if err != nil {
		t.Fatalf(unexpectedErrMsg, err)
	}
	if again != first.ID {
		t.Fatalf("expected the same agency, got %s and %s", first.ID, again)
	}
}

func TestConnectWhatsAppSealsToken(t *testing.T) {
	svc, owner := newService(t)
	ctx := context.Background()

	if err := svc.ConnectWhatsApp(ctx, owner.ID, " 1055 ", " EAAG-token "); err != nil {
		t.Fatalf(unexpectedErrMsg, err)
	}

	user, err := svc.UserByPhoneNumberID(ctx, "1055")
	if err != nil {
		t.Fatalf(unexpectedErrMsg, err)
	}
	if user.WhatsAppAccessToken == nil || *user.WhatsAppAccessToken == "EAAG-token" {
		t.Fatal("expected the stored token to be sealed")
	}

	creds, ok := svc.WhatsAppCredentials(user)
	if !ok {
		t.Fatal("expected usable credentials")
	}
	if creds.PhoneNumberID != "1055" || creds.AccessToken != "EAAG-token" {
		t.Fatalf("unexpected credentials: %+v", creds)
	}
}

func TestWhatsAppCredentialsMissing(t *testing.T) {
	svc, owner := newService(t)
	if _, ok := svc.WhatsAppCredentials(owner); ok {
		t.Fatal("expected no credentials before connecting")
	}
}

func TestUserByPhoneNumberIDNotFound(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.UserByPhoneNumberID(context.Background(), "unknown")
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCreateAgent(t *testing.T) {
	svc, owner := newService(t)
	ctx := context.Background()

	agent, err := svc.CreateAgent(ctx, owner, " Ravi ", "Ravi@Example.com", repository.RoleAgent)
	if err != nil {
		t.Fatalf(unexpectedErrMsg, err)
	}
	if agent.Email != "ravi@example.com" || agent.Name != "Ravi" || agent.AgencyID == nil {
		t.Fatalf("unexpected agent: %+v", agent)
	}

	refreshed, err := svc.GetUser(ctx, owner.ID)
	if err != nil {
		t.Fatalf(unexpectedErrMsg, err)
	}
	members, err := svc.ListAgents(ctx, refreshed)
	if err != nil {
		t.Fatalf(unexpectedErrMsg, err)
	}
	if len(members) != 2 {
		t.Fatalf("expected owner and agent, got %d users", len(members))
	}

	if _, err := svc.CreateAgent(ctx, owner, "Dup", "ravi@example.com", repository.RoleAgent); !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict for duplicate email, got %v", err)
	}
	if _, err := svc.CreateAgent(ctx, owner, "Boss", "boss@example.com", repository.RoleOwner); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error for owner role, got %v", err)
	}
	if _, err := svc.CreateAgent(ctx, agent, "Sam", "sam@example.com", repository.RoleAgent); !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("expected agents to be forbidden, got %v", err)
	}
}
