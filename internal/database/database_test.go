package database

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func TestConnectSQLite(t *testing.T) {
	db, err := Connect("sqlite://file::memory:?cache=shared")
	require.NoError(t, err)
	require.NoError(t, db.Exec("SELECT 1").Error)
}

func TestConnectRejectsEmptyDSN(t *testing.T) {
	_, err := Connect("")
	require.Error(t, err)
}

func TestConnectRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := ConnectRedis("redis://" + mr.Addr())
	require.NoError(t, err)
	defer client.Close()

	_, err = ConnectRedis("")
	require.Error(t, err)

	_, err = ConnectRedis("mysql://nope")
	require.ErrorContains(t, err, "parse redis url")
}

func TestConnectNATSRequiresURL(t *testing.T) {
	_, err := ConnectNATS("", "interview-eval-api")
	require.Error(t, err)
}
