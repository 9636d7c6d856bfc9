package tempuskv

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedScanKeys(t *testing.T, db *Db, keys ...string) {
	t.Helper()
	for _, k := range keys {
		require.NoError(t, db.Insert([]byte(k), []byte(k)))
	}
}

func scanAll(t *testing.T, db *Db, pattern string) []string {
	t.Helper()
	ctx := context.Background()
	it := db.Scan(ctx, []byte(pattern))
	defer it.Close()

	var got []string
	for it.Next(ctx) {
		k, _ := it.Item()
		got = append(got, string(k))
	}
	require.NoError(t, it.Err())
	return got
}

func TestScanStarMatchesAnySuffix(t *testing.T) {
	db := newTestDB(t)
	seedScanKeys(t, db, "foo/abcd/1", "foo/abcd/2", "foo/abcd/3", "foo/xyz/1", "bar")

	got := scanAll(t, db, "foo/abcd/*")
	assert.ElementsMatch(t, []string{"foo/abcd/1", "foo/abcd/2", "foo/abcd/3"}, got)
}

func TestScanQuestionMarkMatchesExactlyOneByte(t *testing.T) {
	db := newTestDB(t)
	seedScanKeys(t, db, "key_1", "key_2", "key_10", "key")

	got := scanAll(t, db, "key_?")
	assert.ElementsMatch(t, []string{"key_1", "key_2"}, got)
}

func TestScanEscapedMetacharacterIsLiteral(t *testing.T) {
	db := newTestDB(t)
	seedScanKeys(t, db, "foo/abcd/*", "foo/abcd/1", "foo/abcd/2")

	got := scanAll(t, db, "foo/abcd/\\*")
	assert.Equal(t, []string{"foo/abcd/*"}, got)
}

func TestScanLiteralPrefixTightensTheRange(t *testing.T) {
	db := newTestDB(t)
	seedScanKeys(t, db, "a/1", "a/2", "b/1")

	got := scanAll(t, db, "a/*")
	assert.ElementsMatch(t, []string{"a/1", "a/2"}, got)
}

func TestScanSkipsExpiredKeys(t *testing.T) {
	db := newTestDB(t)
	seedScanKeys(t, db, "e/1", "e/2")

	ok, err := db.Expire([]byte("e/1"), 1)
	require.NoError(t, err)
	require.True(t, ok)

	// Give the lazy-expiry clock a moment to pass the 1ms horizon.
	waitPastMillis(2)

	got := scanAll(t, db, "e/*")
	assert.Equal(t, []string{"e/2"}, got)
}

func TestCompileGlobPrefixExtraction(t *testing.T) {
	cases := []struct {
		pattern, prefix string
	}{
		{"foo/abcd/*", "foo/abcd/"},
		{"foo/abcd/\\*", "foo/abcd/*"},
		{"foo/abcd/\\?", "foo/abcd/?"},
		{"exact", "exact"},
		{"*", ""},
	}
	for _, c := range cases {
		g := compileGlob([]byte(c.pattern))
		assert.Equal(t, c.prefix, string(g.prefix), "pattern %q", c.pattern)
	}
}

func TestMatchGlobRunes(t *testing.T) {
	assert.True(t, matchGlobRunes([]rune("*"), []rune("anything")))
	assert.True(t, matchGlobRunes([]rune(""), []rune("")))
	assert.False(t, matchGlobRunes([]rune(""), []rune("x")))
	assert.True(t, matchGlobRunes([]rune("a?c"), []rune("abc")))
	assert.False(t, matchGlobRunes([]rune("a?c"), []rune("ac")))
}
