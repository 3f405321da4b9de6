package service

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/sitegrade/sitegrade/internal/constants"
	"github.com/sitegrade/sitegrade/internal/models"
	"github.com/sitegrade/sitegrade/internal/urlguard"
)

func publicLookup(ips ...string) urlguard.LookupFunc {
	return func(ctx context.Context, host string) ([]net.IP, error) {
		resolved := make([]net.IP, 0, len(ips))
		for _, ip := range ips {
			resolved = append(resolved, net.ParseIP(ip))
		}
		return resolved, nil
	}
}

func newAuditService(env *testEnv, lookup urlguard.LookupFunc) *AuditService {
	return NewAuditService(env.auditRepo, urlguard.NewWithLookup(lookup), env.unlockSvc, models.NewMoneyFromInt(499))
}

func TestSubmitQueuesGuardedAudit(t *testing.T) {
	env := newTestEnv(t)
	svc := newAuditService(env, publicLookup("93.184.216.34"))

	audit, err := svc.Submit(context.Background(), "Example.com/page#frag")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if audit.Status != constants.AuditStatusQueued {
		t.Fatalf("status = %q, want queued", audit.Status)
	}
	if audit.NormalizedURL != "https://example.com/page" {
		t.Fatalf("normalized url = %q", audit.NormalizedURL)
	}
	if audit.Host != "example.com" {
		t.Fatalf("host = %q", audit.Host)
	}
	if audit.PublicID == "" {
		t.Fatal("public id not assigned")
	}
	if audit.FinalPriceInr.String() != "499.00" {
		t.Fatalf("final price = %s, want 499.00", audit.FinalPriceInr.String())
	}
}

func TestSubmitRejectsPrivateHost(t *testing.T) {
	env := newTestEnv(t)
	svc := newAuditService(env, publicLookup("10.0.0.5"))

	_, err := svc.Submit(context.Background(), "https://internal.example.com")
	var guardErr *urlguard.Error
	if !errors.As(err, &guardErr) {
		t.Fatalf("err = %v, want urlguard.Error", err)
	}
	if guardErr.Code != urlguard.CodePrivateIP {
		t.Fatalf("code = %q, want %q", guardErr.Code, urlguard.CodePrivateIP)
	}

	var count int64
	if err := env.db.Model(&models.Audit{}).Count(&count).Error; err != nil {
		t.Fatalf("count audits: %v", err)
	}
	if count != 0 {
		t.Fatal("rejected submission must not persist an audit")
	}
}

func TestGetUnknownAudit(t *testing.T) {
	env := newTestEnv(t)
	svc := newAuditService(env, publicLookup("93.184.216.34"))

	if _, err := svc.Get("missing"); !errors.Is(err, ErrAuditNotFound) {
		t.Fatalf("err = %v, want ErrAuditNotFound", err)
	}
}

func TestCaptureLeadValidation(t *testing.T) {
	env := newTestEnv(t)
	svc := newAuditService(env, publicLookup("93.184.216.34"))
	audit := env.seedAudit(t)

	cases := []struct {
		name  string
		input LeadInput
		want  error
	}{
		{"no consent", LeadInput{Email: "asha@example.in", Consent: false}, ErrConsentRequired},
		{"empty email", LeadInput{Consent: true}, ErrLeadInvalid},
		{"malformed email", LeadInput{Email: "not-an-email", Consent: true}, ErrLeadInvalid},
	}
	for _, tc := range cases {
		if _, err := svc.CaptureLead(audit.PublicID, tc.input); !errors.Is(err, tc.want) {
			t.Errorf("%s: err = %v, want %v", tc.name, err, tc.want)
		}
	}
}

func TestCaptureLeadStoresLead(t *testing.T) {
	env := newTestEnv(t)
	svc := newAuditService(env, publicLookup("93.184.216.34"))
	audit := env.seedAudit(t)

	updated, err := svc.CaptureLead(audit.PublicID, LeadInput{
		Name:    "Asha Rao",
		Email:   "asha@example.in",
		Phone:   "+919999000011",
		Consent: true,
	})
	if err != nil {
		t.Fatalf("capture lead: %v", err)
	}
	if !updated.HasLead() {
		t.Fatal("lead not recorded")
	}
	if updated.LeadEmail != "asha@example.in" {
		t.Fatalf("lead email = %q", updated.LeadEmail)
	}
	if updated.IsUnlocked {
		t.Fatal("lead alone must not unlock")
	}
}
