package tenants_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/reanhealth/botgateway/internal/errs"
	"github.com/reanhealth/botgateway/internal/messaging"
	"github.com/reanhealth/botgateway/internal/tenants"
)

type fakeReader struct {
	calls   atomic.Int32
	tenants map[string]tenants.Tenant
}

func (f *fakeReader) GetByName(ctx context.Context, name string) (tenants.Tenant, error) {
	f.calls.Add(1)
	t, ok := f.tenants[name]
	if !ok {
		return tenants.Tenant{}, errs.New(errs.KindNotFound, "tenant %q not found", name)
	}
	return t, nil
}

func (f *fakeReader) GetByID(ctx context.Context, id string) (tenants.Tenant, error) {
	f.calls.Add(1)
	for _, t := range f.tenants {
		if t.ID == id {
			return t, nil
		}
	}
	return tenants.Tenant{}, errs.New(errs.KindNotFound, "tenant %q not found", id)
}

func TestServiceCachesLookups(t *testing.T) {
	t.Parallel()
	reader := &fakeReader{tenants: map[string]tenants.Tenant{
		"acme": {ID: "t1", Name: "acme", Channels: map[messaging.ChannelKind]tenants.ChannelCredentials{
			messaging.ChannelWhatsApp: {URLToken: "tok"},
		}},
	}}
	svc := tenants.NewService(nil, reader, time.Minute)

	for i := 0; i < 5; i++ {
		tenant, err := svc.GetByName(context.Background(), "acme")
		if err != nil {
			t.Fatal(err)
		}
		if tenant.ID != "t1" {
			t.Fatalf("tenant id = %q", tenant.ID)
		}
	}
	if got := reader.calls.Load(); got != 1 {
		t.Fatalf("store hit %d times, want 1", got)
	}

	// GetByID is served from the same cache fill.
	if _, err := svc.GetByID(context.Background(), "t1"); err != nil {
		t.Fatal(err)
	}
	if got := reader.calls.Load(); got != 1 {
		t.Fatalf("GetByID bypassed cache: %d store hits", got)
	}
}

func TestServiceInvalidate(t *testing.T) {
	t.Parallel()
	reader := &fakeReader{tenants: map[string]tenants.Tenant{"acme": {ID: "t1", Name: "acme"}}}
	svc := tenants.NewService(nil, reader, time.Minute)
	if _, err := svc.GetByName(context.Background(), "acme"); err != nil {
		t.Fatal(err)
	}
	svc.Invalidate("acme")
	if _, err := svc.GetByName(context.Background(), "acme"); err != nil {
		t.Fatal(err)
	}
	if got := reader.calls.Load(); got != 2 {
		t.Fatalf("store hits = %d, want 2 after invalidation", got)
	}
}

func TestServiceNotFoundPropagates(t *testing.T) {
	t.Parallel()
	svc := tenants.NewService(nil, &fakeReader{tenants: map[string]tenants.Tenant{}}, time.Minute)
	_, err := svc.GetByName(context.Background(), "ghost")
	if !errs.IsKind(err, errs.KindNotFound) {
		t.Fatalf("err = %v, want not_found", err)
	}
}
