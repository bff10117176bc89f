package blobstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectKey(t *testing.T) {
	key, err := objectKey("", "sha256/ab/cd/abcd")
	require.NoError(t, err)
	assert.Equal(t, "sha256/ab/cd/abcd", key)

	key, err = objectKey("/media/", "sha256/ab/cd/abcd")
	require.NoError(t, err)
	assert.Equal(t, "media/sha256/ab/cd/abcd", key)

	_, err = objectKey("media", "../escape")
	assert.Error(t, err)
}

func TestEndpointURL(t *testing.T) {
	assert.Equal(t, "", endpointURL(" ", true))
	assert.Equal(t, "https://s3.local:9000", endpointURL("s3.local:9000", true))
	assert.Equal(t, "http://s3.local:9000", endpointURL("s3.local:9000", false))
	assert.Equal(t, "http://already", endpointURL("http://already", true))
}
