package s3

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tiercache/tiercache/pkg/types"
)

var _ types.RemoteSource = (*Source)(nil)

type fakeClient struct {
	objects map[string]string
	err     error
	lastKey string
}

func (f *fakeClient) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.lastKey = aws.ToString(in.Key)
	if f.err != nil {
		return nil, f.err
	}
	body, ok := f.objects[f.lastKey]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(body))}, nil
}

func TestNewRequiresBucket(t *testing.T) {
	_, err := New(&fakeClient{}, "", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket name cannot be empty")

	_, err = NewFromConfig(context.Background(), &Config{})
	assert.Error(t, err)
}

func TestSourceFetch(t *testing.T) {
	ctx := context.Background()
	client := &fakeClient{objects: map[string]string{"tiercache/layout-1": `{"width":3}`}}
	src, err := New(client, "bucket", "tiercache/")
	require.NoError(t, err)

	data, found, err := src.Fetch(ctx, "layout-1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, `{"width":3}`, string(data))
	assert.Equal(t, "tiercache/layout-1", client.lastKey)

	_, found, err = src.Fetch(ctx, "layout-2")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSourceFetchErrors(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantFound bool
		wantErr   bool
	}{
		{name: "generic not found", err: &smithy.GenericAPIError{Code: "NotFound"}},
		{name: "typed not found", err: &s3types.NotFound{}},
		{name: "access denied", err: &smithy.GenericAPIError{Code: "AccessDenied"}, wantErr: true},
		{name: "transport", err: fmt.Errorf("dial tcp: timeout"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, err := New(&fakeClient{err: tt.err}, "bucket", "")
			require.NoError(t, err)

			_, found, err := src.Fetch(context.Background(), "k")
			assert.Equal(t, tt.wantFound, found)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	assert.Equal(t, "us-east-1", cfg.Region)
	assert.Equal(t, "tiercache/", cfg.Prefix)
	assert.Equal(t, "tiercache/k", (&Source{prefix: cfg.Prefix}).ObjectKey("k"))
}
