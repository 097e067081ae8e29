package tenantinfra_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/identra-io/identra/pkg/errx"
	"github.com/identra-io/identra/pkg/iam/tenant"
	"github.com/identra-io/identra/pkg/iam/tenant/tenantinfra"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

func newMockRepo(t *testing.T) (tenant.TenantRepository, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return tenantinfra.NewPostgresTenantRepository(sqlx.NewDb(db, "postgres")), mock
}

func tenantRows() *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows([]string{
		"id", "name", "domain", "client_id", "client_secret_hash", "redirect_uris",
		"scopes", "is_active", "plan_id", "api_key", "created_at", "updated_at",
	}).AddRow(
		"t-1", "Acme", "acme.test", "tn-t-1", "$2a$10$hash", "{https://acme.test/callback}",
		"{openid}", true, "pro", "", now, now,
	)
}

func TestFindByClientID(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`SELECT .+ FROM tenants WHERE client_id = \$1`).
		WithArgs("tn-t-1").
		WillReturnRows(tenantRows())

	got, err := repo.FindByClientID(context.Background(), "tn-t-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != "t-1" || got.Domain != "acme.test" || !got.Active {
		t.Fatalf("row not mapped: %+v", got)
	}
	if len(got.RedirectURIs) != 1 || got.RedirectURIs[0] != "https://acme.test/callback" {
		t.Fatalf("array column not decoded: %v", got.RedirectURIs)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestFindByID_NotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`SELECT .+ FROM tenants WHERE id = \$1`).
		WithArgs("t-missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.FindByID(context.Background(), "t-missing")
	if !errx.IsType(err, errx.TypeNotFound) {
		t.Fatalf("expected typed not-found, got %v", err)
	}
}

func TestExistsByDomain(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("acme.test").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.ExistsByDomain(context.Background(), "acme.test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !exists {
		t.Fatal("expected domain to exist")
	}
}

func TestCreate_UniqueViolationIsConflict(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`INSERT INTO tenants`).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "tenants_domain_key"})

	err := repo.Create(context.Background(), tenant.Tenant{
		ID: "t-1", Name: "Acme", Domain: "acme.test", ClientID: "tn-t-1",
	})

	var e *errx.Error
	if !errors.As(err, &e) || e.Code != "TENANT_ALREADY_EXISTS" {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestUpdate_ZeroRowsIsNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`UPDATE tenants SET`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Update(context.Background(), tenant.Tenant{ID: "t-missing"})
	if !errx.IsType(err, errx.TypeNotFound) {
		t.Fatalf("expected not-found, got %v", err)
	}
}

func TestDeactivate(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`UPDATE tenants SET is_active = FALSE`).
		WithArgs("t-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Deactivate(context.Background(), "t-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
