//go:build integration

package ledger_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mysql"

	"github.com/anna-pye/myeventlane-v2-sub001/internal/conf"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/datastore"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/ledger"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/testutil"
)

// TestLedger_MySQL runs the sent key guarantee against a real MySQL server.
// Run with: go test -tags integration ./internal/ledger/
func TestLedger_MySQL(t *testing.T) {
	ctx := t.Context()

	container, err := mysql.Run(ctx, "mysql:8.0",
		mysql.WithDatabase("myeventlane"),
		mysql.WithUsername("automation"),
		mysql.WithPassword("automation"),
	)
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "3306/tcp")
	require.NoError(t, err)

	db, err := datastore.Open(&conf.DatabaseSettings{
		Type: datastore.DialectMySQL,
		MySQL: conf.MySQLSettings{
			Host:     host,
			Port:     port.Int(),
			Username: "automation",
			Password: "automation",
			Database: "myeventlane",
		},
		MaxOpenConns: 4,
		MaxIdleConns: 2,
	}, testutil.DiscardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = datastore.Close(db) })
	require.NoError(t, datastore.Migrate(ctx, db, false))

	l := ledger.New(db)
	hash := ledger.HashRecipient("mysql@example.com")

	first, err := l.CreateDispatch(ctx, nil, typeDigest, hash, nil, nil)
	require.NoError(t, err)
	second, err := l.CreateDispatch(ctx, nil, typeDigest, hash, nil, nil)
	require.NoError(t, err)

	require.NoError(t, l.MarkSent(ctx, first))
	require.ErrorIs(t, l.MarkSent(ctx, second), ledger.ErrDuplicateSend)

	sent, err := l.IsAlreadySent(ctx, nil, typeDigest, hash)
	require.NoError(t, err)
	assert.True(t, sent)

	require.NoError(t, l.MarkFailed(ctx, first, "bounced"))
	require.NoError(t, l.MarkSent(ctx, second), "releasing the first record frees the key")
}
