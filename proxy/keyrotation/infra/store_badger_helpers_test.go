package infra

import (
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
)

func badgerExpiresAt(t *testing.T, s *BadgerRotationStore, key string) uint64 {
	t.Helper()
	var exp uint64
	err := s.db.View(func(txn *badger.Txn) error {
		_, e, _, err := getInt(txn, key)
		exp = e
		return err
	})
	require.NoError(t, err)
	return exp
}
