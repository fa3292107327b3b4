package tree

import (
	"context"
	"log/slog"
	"testing"

	"github.com/michael-freling/telecloud/internal/db"
	"github.com/michael-freling/telecloud/internal/xlog"
	"github.com/stretchr/testify/require"
)

const (
	testOwnerID  = "alice"
	otherOwnerID = "bob"
)

type tester struct {
	dbClient db.TestClient
	logger   *slog.Logger
}

type testerOption struct {
	logger *slog.Logger
}

type newTesterOption func(*testerOption)

func withLogger(logger *slog.Logger) newTesterOption {
	return func(o *testerOption) {
		o.logger = logger
	}
}

func newTester(t *testing.T, opts ...newTesterOption) *tester {
	t.Helper()
	defaultOption := &testerOption{
		logger: xlog.Nop(),
	}
	for _, opt := range opts {
		opt(defaultOption)
	}

	dbClient := db.NewTestClient(t)
	db.LoadTestData(t, dbClient, []db.Owner{
		{ID: testOwnerID},
		{ID: otherOwnerID},
	})
	return &tester{
		dbClient: dbClient,
		logger:   defaultOption.logger,
	}
}

func (tester *tester) getService() *Service {
	return NewService(tester.logger, tester.dbClient.Client)
}

// loadTree creates the following items for testOwnerID, plus one folder for
// otherOwnerID:
//
//	1 Docs/
//	  2 a.txt
//	  3 Sub/
//	    4 b.txt
//	    5 Deep/
//	6 Photos/
//	7 c.png
//	8 (otherOwnerID) Shared/
func (tester *tester) loadTree(t *testing.T) {
	t.Helper()
	db.LoadTestData(t, tester.dbClient, []db.Item{
		{ID: 1, OwnerID: testOwnerID, Name: "Docs", Kind: db.ItemKindFolder},
		{ID: 2, OwnerID: testOwnerID, ParentID: ptr[uint](1), Name: "a.txt", Kind: db.ItemKindFile, Blob: &db.BlobRef{FileID: "file-2"}},
		{ID: 3, OwnerID: testOwnerID, ParentID: ptr[uint](1), Name: "Sub", Kind: db.ItemKindFolder},
		{ID: 4, OwnerID: testOwnerID, ParentID: ptr[uint](3), Name: "b.txt", Kind: db.ItemKindFile, Blob: &db.BlobRef{FileID: "file-4"}},
		{ID: 5, OwnerID: testOwnerID, ParentID: ptr[uint](3), Name: "Deep", Kind: db.ItemKindFolder},
		{ID: 6, OwnerID: testOwnerID, Name: "Photos", Kind: db.ItemKindFolder},
		{ID: 7, OwnerID: testOwnerID, Name: "c.png", Kind: db.ItemKindFile, Blob: &db.BlobRef{FileID: "file-7"}},
		{ID: 8, OwnerID: otherOwnerID, Name: "Shared", Kind: db.ItemKindFolder},
	})
}

func (tester *tester) listChildIDs(t *testing.T, parentID *uint) []uint {
	t.Helper()
	items, err := tester.dbClient.Item(context.Background()).ListChildren(testOwnerID, parentID, false)
	require.NoError(t, err)
	return items.ToIDs()
}

func (tester *tester) mustFind(t *testing.T, id uint) db.Item {
	t.Helper()
	item, err := tester.dbClient.Item(context.Background()).FindByID(testOwnerID, id)
	require.NoError(t, err)
	return item
}

func ptr[T any](v T) *T {
	return &v
}
