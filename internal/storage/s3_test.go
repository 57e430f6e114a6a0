package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	objects map[string][]byte
	inputs  []*s3.PutObjectInput
	fail    error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}}
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	body, _ := io.ReadAll(in.Body)
	f.objects[aws.ToString(in.Key)] = body
	f.inputs = append(f.inputs, in)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) HeadBucket(ctx context.Context, in *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	return &s3.HeadBucketOutput{}, nil
}

func TestCheckImage(t *testing.T) {
	tests := []struct {
		filename    string
		contentType string
		err         error
	}{
		{"bag.jpg", "image/jpeg", nil},
		{"bag.JPEG", "image/jpeg", nil},
		{"watch.png", "image/png", nil},
		{"scarf.webp", "image/webp", nil},
		{"anim.GIF", "image/gif", nil},
		{"doc.pdf", "", ErrUnsupportedImage},
		{"noext", "", ErrUnsupportedImage},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			_, ct, err := checkImage([]byte("data"), tt.filename)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.contentType, ct)
		})
	}

	_, _, err := checkImage(nil, "a.jpg")
	assert.ErrorIs(t, err, ErrEmptyImage)
	_, _, err = checkImage(make([]byte, MaxImageSize+1), "a.jpg")
	assert.ErrorIs(t, err, ErrImageTooLarge)
}

func TestUploadProductImage(t *testing.T) {
	fake := newFakeS3()
	u := newS3Uploader(fake, "eu-west-3", "listings", "https://cdn.example.com/")

	first, err := u.UploadProductImage(context.Background(), []byte("img-1"), "user-1", "Kelly.JPG")
	require.NoError(t, err)
	second, err := u.UploadProductImage(context.Background(), []byte("img-2"), "user-1", "Kelly.JPG")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(first.Key, "products/user-1/"))
	assert.True(t, strings.HasSuffix(first.Key, ".jpg"))
	assert.NotEqual(t, first.Key, second.Key)
	assert.Equal(t, "https://cdn.example.com/"+first.Key, first.URL)
	assert.Equal(t, int64(5), first.Size)
	assert.Equal(t, "image/jpeg", aws.ToString(fake.inputs[0].ContentType))
	assert.Len(t, fake.objects, 2)
}

func TestUploadAvatarOverwrites(t *testing.T) {
	fake := newFakeS3()
	u := newS3Uploader(fake, "eu-west-3", "listings", "https://cdn.example.com")

	_, err := u.UploadAvatar(context.Background(), []byte("old"), "user-1", "me.png")
	require.NoError(t, err)
	res, err := u.UploadAvatar(context.Background(), []byte("new"), "user-1", "me.png")
	require.NoError(t, err)

	assert.Equal(t, "user-1/avatar.png", res.Key)
	assert.Equal(t, "https://cdn.example.com/user-1/avatar.png", res.URL)
	require.Len(t, fake.objects, 1)
	assert.True(t, bytes.Equal([]byte("new"), fake.objects["user-1/avatar.png"]))
}

func TestUploadRejectsUnsupportedType(t *testing.T) {
	fake := newFakeS3()
	u := newS3Uploader(fake, "eu-west-3", "listings", "https://cdn.example.com")

	_, err := u.UploadProductImage(context.Background(), []byte("x"), "user-1", "scan.tiff")
	assert.ErrorIs(t, err, ErrUnsupportedImage)
	assert.Empty(t, fake.objects)
}

func TestUploadPropagatesS3Errors(t *testing.T) {
	fake := newFakeS3()
	fake.fail = errors.New("access denied")
	u := newS3Uploader(fake, "eu-west-3", "listings", "https://cdn.example.com")

	_, err := u.UploadAvatar(context.Background(), []byte("x"), "user-1", "me.png")
	assert.ErrorContains(t, err, "access denied")
	assert.Error(t, u.CheckBucketAccess(context.Background()))
}

func TestKeyFromURLAndDelete(t *testing.T) {
	fake := newFakeS3()
	u := newS3Uploader(fake, "eu-west-3", "listings", "https://cdn.example.com")

	res, err := u.UploadProductImage(context.Background(), []byte("x"), "user-1", "a.webp")
	require.NoError(t, err)

	key, ok := u.KeyFromURL(res.URL)
	require.True(t, ok)
	assert.Equal(t, res.Key, key)

	_, ok = u.KeyFromURL("https://elsewhere.example.com/a.webp")
	assert.False(t, ok)

	require.NoError(t, u.DeleteFile(context.Background(), key))
	assert.Empty(t, fake.objects)
}
