package db

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type TestClient struct {
	*Client
}

// NewTestClient opens a migrated in-memory database owned by t.
func NewTestClient(t *testing.T, options ...ClientOption) TestClient {
	t.Helper()

	options = append([]ClientOption{WithNopLogger()}, options...)
	client, err := NewClient(DSNMemory(uuid.NewString()), options...)
	require.NoError(t, err)
	t.Cleanup(func() {
		client.Close()
	})
	require.NoError(t, client.Migrate())

	return TestClient{
		Client: client,
	}
}

func LoadTestData[Model any](t *testing.T, client TestClient, values []Model) {
	t.Helper()
	require.NoError(t, BatchCreate(client.Client, values))
}

// MustGetAll reads the table without any owner scope.
func MustGetAll[Model any](t *testing.T, client TestClient) []Model {
	t.Helper()
	values, err := GetAll[Model](client.Client)
	require.NoError(t, err)
	return values
}
