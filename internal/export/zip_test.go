package export

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/klauspost/compress/zip"
	"github.com/michael-freling/telecloud/internal/blob"
	"github.com/michael-freling/telecloud/internal/config"
	"github.com/michael-freling/telecloud/internal/db"
	"github.com/michael-freling/telecloud/internal/transfer"
	"github.com/michael-freling/telecloud/internal/tree"
	"github.com/michael-freling/telecloud/internal/xlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const testOwnerID = "alice"

type tester struct {
	dbClient       db.TestClient
	mockController *gomock.Controller
}

func newTester(t *testing.T) *tester {
	t.Helper()

	dbClient := db.NewTestClient(t)
	db.LoadTestData(t, dbClient, []db.Owner{
		{ID: testOwnerID, TelegramBotToken: "123:secret", TelegramChannelID: "-100"},
	})
	mockController := gomock.NewController(t)
	t.Cleanup(mockController.Finish)
	return &tester{
		dbClient:       dbClient,
		mockController: mockController,
	}
}

func (tester *tester) getExporter(t *testing.T, gateway blob.Gateway) *ZipExporter {
	logger := xlog.Nop()
	treeService := tree.NewService(logger, tester.dbClient.Client)
	transferService := transfer.NewService(
		logger,
		tester.dbClient.Client,
		gateway,
		treeService,
		blob.NewPreviewPolicy(config.Default().Preview),
		t.TempDir(),
	)
	return NewZipExporter(logger, treeService, transferService)
}

func ptr[T any](v T) *T {
	return &v
}

type archiveEntry struct {
	name     string
	contents string
}

func readArchive(t *testing.T, archive []byte) []archiveEntry {
	t.Helper()
	reader, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	require.NoError(t, err)

	entries := make([]archiveEntry, 0, len(reader.File))
	for _, file := range reader.File {
		opened, err := file.Open()
		require.NoError(t, err)
		contents, err := io.ReadAll(opened)
		require.NoError(t, err)
		opened.Close()
		entries = append(entries, archiveEntry{name: file.Name, contents: string(contents)})
	}
	return entries
}

func fileBody(contents string) io.ReadCloser {
	return io.NopCloser(strings.NewReader(contents))
}

func TestZipExporter_Export(t *testing.T) {
	items := []db.Item{
		{ID: 1, OwnerID: testOwnerID, Name: "folderX", Kind: db.ItemKindFolder},
		{ID: 2, OwnerID: testOwnerID, ParentID: ptr[uint](1), Name: "fileZ", Kind: db.ItemKindFile, Blob: &db.BlobRef{FileID: "file-z"}},
		{ID: 3, OwnerID: testOwnerID, Name: "fileY", Kind: db.ItemKindFile, Blob: &db.BlobRef{FileID: "file-y"}},
		{ID: 4, OwnerID: testOwnerID, ParentID: ptr[uint](1), Name: "trashed.txt", Kind: db.ItemKindFile, IsTrashed: true, TrashRootID: ptr[uint](4), Blob: &db.BlobRef{FileID: "file-trashed"}},
		{ID: 5, OwnerID: testOwnerID, Name: "empty", Kind: db.ItemKindFolder},
		{ID: 6, OwnerID: testOwnerID, Name: "a/b", Kind: db.ItemKindFile, Blob: &db.BlobRef{FileID: "file-slash"}},
	}

	testCases := []struct {
		name         string
		ids          []uint
		setupGateway func(gateway *blob.MockGateway)
		want         []archiveEntry
		wantSummary  Summary
	}{
		{
			name: "a folder and a file",
			ids:  []uint{1, 3},
			setupGateway: func(gateway *blob.MockGateway) {
				gateway.EXPECT().Open(gomock.Any(), gomock.Any(), db.BlobRef{FileID: "file-z"}).Return(fileBody("z"), int64(1), nil)
				gateway.EXPECT().Open(gomock.Any(), gomock.Any(), db.BlobRef{FileID: "file-y"}).Return(fileBody("y"), int64(1), nil)
			},
			want: []archiveEntry{
				{name: "fileY", contents: "y"},
				{name: "folderX/"},
				{name: "folderX/fileZ", contents: "z"},
			},
			wantSummary: Summary{Folders: 1, Files: 2, Bytes: 2},
		},
		{
			name: "the request order does not matter",
			ids:  []uint{3, 1},
			setupGateway: func(gateway *blob.MockGateway) {
				gateway.EXPECT().Open(gomock.Any(), gomock.Any(), db.BlobRef{FileID: "file-z"}).Return(fileBody("z"), int64(1), nil)
				gateway.EXPECT().Open(gomock.Any(), gomock.Any(), db.BlobRef{FileID: "file-y"}).Return(fileBody("y"), int64(1), nil)
			},
			want: []archiveEntry{
				{name: "fileY", contents: "y"},
				{name: "folderX/"},
				{name: "folderX/fileZ", contents: "z"},
			},
			wantSummary: Summary{Folders: 1, Files: 2, Bytes: 2},
		},
		{
			name: "a nested request is not duplicated",
			ids:  []uint{2, 1, 1},
			setupGateway: func(gateway *blob.MockGateway) {
				gateway.EXPECT().Open(gomock.Any(), gomock.Any(), db.BlobRef{FileID: "file-z"}).Return(fileBody("z"), int64(1), nil)
			},
			want: []archiveEntry{
				{name: "folderX/"},
				{name: "folderX/fileZ", contents: "z"},
			},
			wantSummary: Summary{Folders: 1, Files: 1, Bytes: 1},
		},
		{
			name: "empty folder and a name with a slash",
			ids:  []uint{5, 6, 100},
			setupGateway: func(gateway *blob.MockGateway) {
				gateway.EXPECT().Open(gomock.Any(), gomock.Any(), db.BlobRef{FileID: "file-slash"}).Return(fileBody("slash"), int64(5), nil)
			},
			want: []archiveEntry{
				{name: "a_b", contents: "slash"},
				{name: "empty/"},
			},
			wantSummary: Summary{Folders: 1, Files: 1, Bytes: 5},
		},
		{
			name:        "trashed item",
			ids:         []uint{4},
			want:        []archiveEntry{},
			wantSummary: Summary{},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tester := newTester(t)
			db.LoadTestData(t, tester.dbClient, items)
			gateway := blob.NewMockGateway(tester.mockController)
			if tc.setupGateway != nil {
				tc.setupGateway(gateway)
			}

			var archive bytes.Buffer
			gotSummary, err := tester.getExporter(t, gateway).Export(context.Background(), testOwnerID, tc.ids, &archive)
			require.NoError(t, err)
			assert.Equal(t, tc.wantSummary, gotSummary)
			assert.Equal(t, tc.want, readArchive(t, archive.Bytes()))
		})
	}
}

func TestZipExporter_Export_FailingEntry(t *testing.T) {
	tester := newTester(t)
	db.LoadTestData(t, tester.dbClient, []db.Item{
		{ID: 1, OwnerID: testOwnerID, Name: "Docs", Kind: db.ItemKindFolder},
		{ID: 2, OwnerID: testOwnerID, ParentID: ptr[uint](1), Name: "gone.txt", Kind: db.ItemKindFile, Blob: &db.BlobRef{FileID: "file-gone"}},
		{ID: 3, OwnerID: testOwnerID, ParentID: ptr[uint](1), Name: "kept.txt", Kind: db.ItemKindFile, Blob: &db.BlobRef{FileID: "file-kept"}},
	})
	gateway := blob.NewMockGateway(tester.mockController)
	gateway.EXPECT().
		Open(gomock.Any(), gomock.Any(), db.BlobRef{FileID: "file-gone"}).
		Return(nil, int64(0), blob.ErrObjectMissing)
	gateway.EXPECT().
		Open(gomock.Any(), gomock.Any(), db.BlobRef{FileID: "file-kept"}).
		Return(fileBody("kept"), int64(4), nil)

	var archive bytes.Buffer
	gotSummary, err := tester.getExporter(t, gateway).Export(context.Background(), testOwnerID, []uint{1}, &archive)
	require.NoError(t, err)

	assert.Equal(t, 1, gotSummary.Files)
	require.Len(t, gotSummary.Failures, 1)
	assert.ErrorIs(t, gotSummary.Err(), ErrArchiveEntryFailed)
	assert.ErrorIs(t, gotSummary.Err(), blob.ErrObjectMissing)

	entries := readArchive(t, archive.Bytes())
	require.Len(t, entries, 3)
	assert.Equal(t, "Docs/", entries[0].name)
	assert.Equal(t, "Docs/gone.txt.error.txt", entries[1].name)
	assert.Contains(t, entries[1].contents, "gone.txt could not be exported")
	assert.Equal(t, archiveEntry{name: "Docs/kept.txt", contents: "kept"}, entries[2])
}

func TestZipExporter_Export_BodyFailsMidStream(t *testing.T) {
	tester := newTester(t)
	db.LoadTestData(t, tester.dbClient, []db.Item{
		{ID: 1, OwnerID: testOwnerID, Name: "Docs", Kind: db.ItemKindFolder},
		{ID: 2, OwnerID: testOwnerID, ParentID: ptr[uint](1), Name: "big.bin", Kind: db.ItemKindFile, Blob: &db.BlobRef{FileID: "file-big"}},
		{ID: 3, OwnerID: testOwnerID, ParentID: ptr[uint](1), Name: "kept.txt", Kind: db.ItemKindFile, Blob: &db.BlobRef{FileID: "file-kept"}},
	})
	gateway := blob.NewMockGateway(tester.mockController)
	gateway.EXPECT().
		Open(gomock.Any(), gomock.Any(), db.BlobRef{FileID: "file-big"}).
		Return(io.NopCloser(io.MultiReader(
			strings.NewReader("0123456789"),
			iotest.ErrReader(blob.ErrUpstream),
		)), int64(100), nil)
	gateway.EXPECT().
		Open(gomock.Any(), gomock.Any(), db.BlobRef{FileID: "file-kept"}).
		Return(fileBody("kept"), int64(4), nil)

	var archive bytes.Buffer
	gotSummary, err := tester.getExporter(t, gateway).Export(context.Background(), testOwnerID, []uint{1}, &archive)
	require.NoError(t, err)

	assert.Equal(t, 1, gotSummary.Files)
	assert.EqualValues(t, 14, gotSummary.Bytes)
	require.Len(t, gotSummary.Failures, 1)
	assert.ErrorIs(t, gotSummary.Err(), ErrArchiveEntryFailed)
	assert.ErrorIs(t, gotSummary.Err(), blob.ErrUpstream)

	entries := readArchive(t, archive.Bytes())
	require.Len(t, entries, 4)
	assert.Equal(t, "Docs/", entries[0].name)
	assert.Equal(t, archiveEntry{name: "Docs/big.bin", contents: "0123456789"}, entries[1])
	assert.Equal(t, "Docs/big.bin.error.txt", entries[2].name)
	assert.Contains(t, entries[2].contents, "the entry Docs/big.bin is truncated after 10 bytes")
	assert.Equal(t, archiveEntry{name: "Docs/kept.txt", contents: "kept"}, entries[3])
}

func TestZipExporter_Export_ParentCycle(t *testing.T) {
	tester := newTester(t)
	db.LoadTestData(t, tester.dbClient, []db.Item{
		{ID: 1, OwnerID: testOwnerID, Name: "Docs", Kind: db.ItemKindFolder},
		{ID: 2, OwnerID: testOwnerID, ParentID: ptr[uint](1), Name: "Inner", Kind: db.ItemKindFolder},
	})
	// rows written without validation can point at each other
	_, err := tester.dbClient.Item(context.Background()).Move(testOwnerID, []uint{1}, ptr[uint](2))
	require.NoError(t, err)

	exporter := tester.getExporter(t, blob.NewMockGateway(tester.mockController))
	archive, err := exporter.Prepare(context.Background(), testOwnerID, []uint{1})
	require.NoError(t, err)

	var buffer bytes.Buffer
	gotSummary, err := archive.Write(context.Background(), &buffer)
	require.NoError(t, err)
	assert.Equal(t, Summary{Folders: 2}, gotSummary)
	assert.Equal(t, []archiveEntry{
		{name: "Docs/"},
		{name: "Docs/Inner/"},
	}, readArchive(t, buffer.Bytes()))
}
