package bigquery

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"

	"github.com/angelmondragon/estore-backend/pkg/config"
)

func TestClientOptions(t *testing.T) {
	assert.Len(t, clientOptions(config.GCPConfig{
		CredentialsJSON:        `{"dummy": "value"}`,
		ApplicationCredentials: "/tmp/creds",
	}), 1)
	assert.Len(t, clientOptions(config.GCPConfig{ApplicationCredentials: "/tmp/creds"}), 1)
	assert.Empty(t, clientOptions(config.GCPConfig{}))
}

func TestNewClientRequiresSettings(t *testing.T) {
	_, err := NewClient(context.Background(), config.GCPConfig{}, config.BigQueryConfig{Dataset: "estore", CommerceTable: "t"}, nil)
	require.ErrorIs(t, err, errProjectIDRequired)

	_, err = NewClient(context.Background(), config.GCPConfig{ProjectID: "p"}, config.BigQueryConfig{CommerceTable: "t"}, nil)
	require.ErrorIs(t, err, errDatasetRequired)

	_, err = NewClient(context.Background(), config.GCPConfig{ProjectID: "p"}, config.BigQueryConfig{Dataset: "estore", CommerceTable: " "}, nil)
	require.ErrorIs(t, err, errTableNameRequired)
}

func TestNilClientGuards(t *testing.T) {
	var c *Client
	require.ErrorIs(t, c.InsertRows(context.Background(), "t", []any{1}), errClientNotInitialized)
	require.ErrorIs(t, c.Ping(context.Background()), errClientNotInitialized)
	assert.Empty(t, c.CommerceTable())
	assert.NoError(t, c.Close())
}

func TestDescribe(t *testing.T) {
	assert.EqualError(t, describe("table", "commerce_events", &googleapi.Error{Code: http.StatusNotFound}), `table "commerce_events" does not exist`)

	denied := &googleapi.Error{Code: http.StatusForbidden}
	assert.ErrorIs(t, describe("dataset", "estore", denied), denied)
	assert.False(t, isNotFound(errors.New("boom")))
}
