package tempuskv

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNamespaceTagsArePairwiseNonPrefix(t *testing.T) {
	tags := [][]byte{tagKV, tagKVTTL, tagCounter, tagMap, tagMapEntry, tagMapLen, tagList, tagListEntry, tagListMeta}
	for i, a := range tags {
		for j, b := range tags {
			if i == j {
				continue
			}
			pa := join(a, []byte{sep})
			pb := join(b, []byte{sep})
			assert.Falsef(t, bytes.HasPrefix(pb, pa), "namespace %q must not be a prefix of %q once the separator is appended", a, b)
		}
	}
}

func TestKVKeyRoundTrip(t *testing.T) {
	for _, userKey := range [][]byte{[]byte("hello"), []byte(""), []byte("a@b@c"), {0x00, 0xff}} {
		enc := encodeKVKey(userKey)
		dec, ok := decodeKVKey(enc)
		require.True(t, ok)
		assert.Equal(t, userKey, dec)
	}
}

func TestMapEntryKeyRoundTrip(t *testing.T) {
	name := []byte("orders")
	subKey := []byte("user@42")
	enc := encodeMapEntryKey(name, subKey)
	dec, ok := decodeMapEntryKey(enc, name)
	require.True(t, ok)
	assert.Equal(t, subKey, dec)
}

func TestListEntryKeyIndexRoundTrip(t *testing.T) {
	enc := encodeListEntryKey([]byte("queue"), 4242)
	idx, ok := decodeListIndex(enc)
	require.True(t, ok)
	assert.Equal(t, uint64(4242), idx)
}

func TestListEntryKeysPreserveIndexOrder(t *testing.T) {
	a := encodeListEntryKey([]byte("queue"), 1)
	b := encodeListEntryKey([]byte("queue"), 2)
	assert.Less(t, string(a), string(b))
}
