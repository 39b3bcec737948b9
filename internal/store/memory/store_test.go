package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"shopcore.dev/internal/apperr"
	"shopcore.dev/internal/auth"
	"shopcore.dev/internal/commerce"
	"shopcore.dev/internal/mfa"
	"shopcore.dev/internal/paging"
)

func TestListCustomersPagesInIDOrder(t *testing.T) {
	ctx := context.Background()
	s := New()
	for i := 0; i < 5; i++ {
		if _, err := s.CreateCustomer(ctx, commerce.Customer{ID: fmt.Sprintf("c-%d", 4-i), Name: "n"}); err != nil {
			t.Fatalf("CreateCustomer: %v", err)
		}
	}

	items, total, err := s.ListCustomers(ctx, paging.Request{Page: 1, Size: 2})
	if err != nil {
		t.Fatalf("ListCustomers: %v", err)
	}
	if total != 5 || len(items) != 2 || items[0].ID != "c-2" || items[1].ID != "c-3" {
		t.Fatalf("unexpected page total=%d items=%+v", total, items)
	}

	items, _, _ = s.ListCustomers(ctx, paging.Request{Page: 9, Size: 2})
	if len(items) != 0 {
		t.Fatalf("page past the end must be empty, got %d", len(items))
	}
}

func TestCreateCustomerRejectsDuplicates(t *testing.T) {
	ctx := context.Background()
	s := New()
	c := commerce.Customer{ID: "c-1", Orders: []commerce.Order{{ID: "o-1", CustomerID: "c-1"}}}
	if _, err := s.CreateCustomer(ctx, c); err != nil {
		t.Fatalf("CreateCustomer: %v", err)
	}
	if _, err := s.CreateCustomer(ctx, c); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected conflict for duplicate customer, got %v", err)
	}
	other := commerce.Customer{ID: "c-2", Orders: []commerce.Order{{ID: "o-1", CustomerID: "c-2"}}}
	if _, err := s.CreateCustomer(ctx, other); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected conflict for duplicate order, got %v", err)
	}
	if _, err := s.GetCustomer(ctx, "c-2"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("rejected customer must not be stored")
	}
}

func TestUpdateCustomerKeepsAddressID(t *testing.T) {
	ctx := context.Background()
	s := New()
	_, err := s.CreateCustomer(ctx, commerce.Customer{ID: "c", Address: &commerce.Address{ID: "a-1", CustomerID: "c", Street: "old"}})
	if err != nil {
		t.Fatalf("CreateCustomer: %v", err)
	}
	got, err := s.UpdateCustomer(ctx, commerce.Customer{ID: "c", Name: "new", Address: &commerce.Address{ID: "a-2", CustomerID: "c", Street: "new"}})
	if err != nil {
		t.Fatalf("UpdateCustomer: %v", err)
	}
	if got.Address == nil || got.Address.ID != "a-1" || got.Address.Street != "new" {
		t.Fatalf("unexpected address %+v", got.Address)
	}
}

func TestDeleteOrderCascadesLineItems(t *testing.T) {
	ctx := context.Background()
	s := New()
	_, _ = s.CreateCustomer(ctx, commerce.Customer{ID: "c"})
	_, err := s.CreateOrder(ctx, commerce.Order{ID: "o", CustomerID: "c", LineItems: []commerce.LineItem{{ID: "li", OrderID: "o"}}})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if err := s.DeleteOrder(ctx, "c", "o"); err != nil {
		t.Fatalf("DeleteOrder: %v", err)
	}
	if _, ok := s.lineItems["li"]; ok {
		t.Fatalf("line item outlived its order")
	}
}

func TestMFASecretDrivesUserFlag(t *testing.T) {
	ctx := context.Background()
	s := New()
	if err := s.SaveMFASecret(ctx, mfa.Secret{UserID: "ghost"}); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found for unknown user, got %v", err)
	}

	u, err := s.CreateUser(ctx, auth.User{Username: "mfa-user"}, nil)
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if err := s.SaveMFASecret(ctx, mfa.Secret{UserID: u.ID, Secret: "ABC"}); err != nil {
		t.Fatalf("SaveMFASecret: %v", err)
	}
	got, _ := s.GetUser(ctx, u.ID)
	if got.MFAEnabled {
		t.Fatalf("pending secret must not mark the user enabled")
	}
	if err := s.EnableMFASecret(ctx, u.ID); err != nil {
		t.Fatalf("EnableMFASecret: %v", err)
	}
	got, _ = s.GetUser(ctx, u.ID)
	if !got.MFAEnabled {
		t.Fatalf("expected MFA enabled")
	}

	if err := s.DeleteUser(ctx, u.ID); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}
	if _, err := s.GetMFASecret(ctx, u.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("secret outlived its user: %v", err)
	}
}

func TestPermissionCodesForRolesUnion(t *testing.T) {
	ctx := context.Background()
	s := New()
	if err := s.EnsurePermissions(ctx, auth.BuiltinPermissions); err != nil {
		t.Fatalf("EnsurePermissions: %v", err)
	}
	perms, _ := s.PermissionsByCodes(ctx, []string{auth.PermReadOrder, auth.PermReadCustomer})
	if len(perms) != 2 {
		t.Fatalf("expected 2 permissions, got %d", len(perms))
	}
	if _, err := s.CreateRole(ctx, auth.Role{Name: "A"}, []string{perms[0].ID}); err != nil {
		t.Fatalf("CreateRole: %v", err)
	}
	if _, err := s.CreateRole(ctx, auth.Role{Name: "B"}, []string{perms[0].ID, perms[1].ID}); err != nil {
		t.Fatalf("CreateRole: %v", err)
	}
	if _, err := s.CreateRole(ctx, auth.Role{Name: "A"}, nil); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected duplicate role name conflict, got %v", err)
	}

	codes, err := s.PermissionCodesForRoles(ctx, []string{"A", "B", "unknown"})
	if err != nil {
		t.Fatalf("PermissionCodesForRoles: %v", err)
	}
	if len(codes) != 2 || codes[0] != auth.PermReadCustomer || codes[1] != auth.PermReadOrder {
		t.Fatalf("unexpected codes %v", codes)
	}
}

func TestConcurrentWrites(t *testing.T) {
	ctx := context.Background()
	s := New()
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = s.CreateCustomer(ctx, commerce.Customer{ID: fmt.Sprintf("c-%02d", i)})
			_, _, _ = s.ListCustomers(ctx, paging.Request{Size: 5})
		}(i)
	}
	wg.Wait()
	if _, total, _ := s.ListCustomers(ctx, paging.Request{Size: 1}); total != 32 {
		t.Fatalf("expected 32 customers, got %d", total)
	}
}
