package repo

import (
	"context"
	"testing"

	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-channelsync/pkg/db/dbtest"
)

type ctxKey struct{}

func TestNewBaseStoresConnection(t *testing.T) {
	db := dbtest.Open(t)
	base := NewBase(db)

	if base.db != db {
		t.Fatalf("expected base db to match provided connection")
	}
}

func TestBaseDB_BindsContext(t *testing.T) {
	db := dbtest.Open(t)
	base := NewBase(db)

	ctx := context.WithValue(context.Background(), ctxKey{}, "value")
	withCtx := base.DB(ctx)
	if withCtx.Statement == nil || withCtx.Statement.Context != ctx {
		t.Fatalf("expected context to flow through")
	}

	//nolint:staticcheck // nil context falls back to the raw handle
	if base.DB(nil) != db {
		t.Fatalf("expected nil context to return raw connection")
	}
}

func TestBaseWithTxSwapsHandle(t *testing.T) {
	db := dbtest.Open(t)
	base := NewBase(db)

	tx := db.Session(&gorm.Session{NewDB: true})
	if got := base.WithTx(tx); got.db != tx {
		t.Fatalf("expected tx handle to replace base connection")
	}
	if got := base.WithTx(nil); got.db != db {
		t.Fatalf("expected nil tx to keep base connection")
	}
}
