package tui

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKVListApply(t *testing.T) {
	t.Run("add appends in order", func(t *testing.T) {
		var l KVList
		var err error
		for _, kv := range []KV{{"A", "1"}, {"B", "2"}, {"C", "3"}} {
			l, err = l.Apply(KVAdd{Pair: kv})
			require.NoError(t, err)
		}
		assert.Equal(t, KVList{{"A", "1"}, {"B", "2"}, {"C", "3"}}, l)
	})

	t.Run("add rejects incomplete pairs", func(t *testing.T) {
		l := KVList{{"A", "1"}}
		for _, kv := range []KV{{"", "1"}, {"A", ""}, {"", ""}} {
			out, err := l.Apply(KVAdd{Pair: kv})
			assert.ErrorIs(t, err, ErrEmptyKV)
			assert.Equal(t, l, out)
		}
	})

	t.Run("delete removes exactly one row", func(t *testing.T) {
		l := KVList{{"A", "1"}, {"B", "2"}, {"C", "3"}, {"D", "4"}}
		for i := range l {
			out, err := l.Apply(KVDelete{Index: i})
			require.NoError(t, err)
			require.Len(t, out, len(l)-1)

			want := append(append(KVList{}, l[:i]...), l[i+1:]...)
			assert.Equal(t, want, out)
		}
		// the source list is untouched
		assert.Equal(t, KVList{{"A", "1"}, {"B", "2"}, {"C", "3"}, {"D", "4"}}, l)
	})

	t.Run("delete out of range", func(t *testing.T) {
		l := KVList{{"A", "1"}}
		_, err := l.Apply(KVDelete{Index: 1})
		assert.ErrorIs(t, err, ErrKVIndex)
		_, err = l.Apply(KVDelete{Index: -1})
		assert.ErrorIs(t, err, ErrKVIndex)
	})
}

func TestKVListStrings(t *testing.T) {
	l := KVList{{"A", "1"}, {"PATH", "/bin:/usr/bin"}}
	assert.Equal(t, []string{"A=1", "PATH=/bin:/usr/bin"}, l.EnvStrings())
	assert.Equal(t, []string{"A@1", "PATH@/bin:/usr/bin"}, l.SecretRefStrings())
	assert.Equal(t, []string{}, KVList(nil).EnvStrings())
}

func TestParseKV(t *testing.T) {
	kv, err := ParseKV("A=b=c", "=")
	require.NoError(t, err)
	assert.Equal(t, KV{Key: "A", Val: "b=c"}, kv)

	kv, err = ParseKV("db@secret/data/db", "@")
	require.NoError(t, err)
	assert.Equal(t, KV{Key: "db", Val: "secret/data/db"}, kv)

	for _, bad := range []string{"A", "=1", "A="} {
		_, err := ParseKV(bad, "=")
		assert.ErrorIs(t, err, ErrEmptyKV, bad)
	}
}
