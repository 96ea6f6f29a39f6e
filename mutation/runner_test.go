package mutation

import (
	"testing"

	"github.com/creditmesh/funder/store"
	"github.com/stretchr/testify/require"
)

func TestCommitPersistsAndReadsBack(t *testing.T) {
	st, err := store.Open(t.TempDir())
	require.NoError(t, err)
	defer st.Close()

	r := New(st)
	defer r.Close()

	var batch store.WriteBatch
	batch.Put([]byte("friend:alice"), []byte("enabled"))
	require.NoError(t, r.Commit(batch))

	v, err := st.Get([]byte("friend:alice"))
	require.NoError(t, err)
	require.Equal(t, []byte("enabled"), v)
}

func TestCommitDeleteRemovesKey(t *testing.T) {
	st, err := store.Open(t.TempDir())
	require.NoError(t, err)
	defer st.Close()

	r := New(st)
	defer r.Close()

	var put store.WriteBatch
	put.Put([]byte("k"), []byte("v"))
	require.NoError(t, r.Commit(put))

	var del store.WriteBatch
	del.Delete([]byte("k"))
	require.NoError(t, r.Commit(del))

	_, err = st.Get([]byte("k"))
	require.ErrorIs(t, err, store.ErrKeyNotFound)
}

func TestConcurrentCommitsAllSucceed(t *testing.T) {
	st, err := store.Open(t.TempDir())
	require.NoError(t, err)
	defer st.Close()

	r := New(st)
	defer r.Close()

	const n = 20
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		i := i
		go func() {
			var b store.WriteBatch
			b.Put([]byte{byte(i)}, []byte{byte(i)})
			errs <- r.Commit(b)
		}()
	}
	for i := 0; i < n; i++ {
		require.NoError(t, <-errs)
	}
}
