package media

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"instagram-automation/internal/apperr"
	"instagram-automation/models"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorageSaveWritesHashedName(t *testing.T) {
	dir := t.TempDir()
	s := NewStorage(dir, 1024, []string{"image/jpeg", "image/png"})
	s.now = func() time.Time { return time.Unix(1700000000, 0) }

	f, err := s.Save(strings.NewReader("jpegbytes"), "../My Photo.jpg", "image/jpeg")
	require.NoError(t, err)

	assert.Regexp(t, `^[0-9a-f]{8}_1700000000_My_Photo\.jpg$`, f.Name)
	assert.Equal(t, "../My Photo.jpg", f.OriginalName)
	assert.Equal(t, int64(9), f.Size)
	assert.Equal(t, filepath.Join(dir, f.Name), f.Path)

	data, err := os.ReadFile(f.Path)
	require.NoError(t, err)
	assert.Equal(t, "jpegbytes", string(data))
}

func TestStorageSaveRejectsOversizedBody(t *testing.T) {
	s := NewStorage(t.TempDir(), 4, nil)

	_, err := s.Save(strings.NewReader("too large"), "a.png", "image/png")
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestStorageValidateFile(t *testing.T) {
	s := NewStorage(t.TempDir(), 100, []string{"image/jpeg"})

	assert.NoError(t, s.validateFile("a.jpg", "image/jpeg", 10))
	for name, err := range map[string]error{
		"empty name":   s.validateFile("", "image/jpeg", 10),
		"too large":    s.validateFile("a.jpg", "image/jpeg", 101),
		"not an image": s.validateFile("a.txt", "text/plain", 10),
		"not allowed":  s.validateFile("a.png", "image/png", 10),
	} {
		assert.True(t, apperr.Is(err, apperr.KindValidation), name)
	}
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "photo.jpg", SanitizeFilename("/tmp/photo.jpg"))
	assert.Equal(t, "evil.png", SanitizeFilename(`C:\evil.png`))
	assert.Equal(t, "a_b_c.jpg", SanitizeFilename("a b?c.jpg"))
	assert.Equal(t, "upload", SanitizeFilename(".."))
}

func TestLocalProviderOnlyReturnsPublicURLs(t *testing.T) {
	file := LocalFile{Name: "x.jpg"}

	u, err := NewLocalProvider("https://media.example.com/").PublicURL(context.Background(), file)
	require.NoError(t, err)
	assert.Equal(t, "https://media.example.com/uploads/x.jpg", u)

	for _, base := range []string{"", "http://localhost:5555", "http://192.168.1.4:5555"} {
		u, err := NewLocalProvider(base).PublicURL(context.Background(), file)
		require.NoError(t, err)
		assert.Empty(t, u, base)
	}
}

type staticProvider struct {
	name string
	url  string
	err  error
}

func (p staticProvider) Name() string { return p.name }
func (p staticProvider) PublicURL(context.Context, LocalFile) (string, error) {
	return p.url, p.err
}

func TestChainProviderFallsThrough(t *testing.T) {
	chain := NewChainProvider(
		staticProvider{name: "broken", err: errors.New("bucket missing")},
		staticProvider{name: "empty"},
		staticProvider{name: "ok", url: "https://cdn.example.com/x.jpg"},
	)
	u, err := chain.PublicURL(context.Background(), LocalFile{Name: "x.jpg"})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/x.jpg", u)

	u, err = NewChainProvider(staticProvider{name: "empty"}).PublicURL(context.Background(), LocalFile{})
	require.NoError(t, err)
	assert.Empty(t, u)
}

func TestResolverUsesLocalURLForSimulation(t *testing.T) {
	r := NewResolver(staticProvider{name: "cloud", url: "https://cdn.example.com/x.jpg"}, "http://localhost:5555")
	file := LocalFile{Name: "x.jpg"}

	u, err := r.Resolve(context.Background(), file, &models.Account{AccessToken: "test_token_abc"})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:5555/uploads/x.jpg", u)

	u, err = r.Resolve(context.Background(), file, &models.Account{AccessToken: "EAAreal"})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/x.jpg", u)
}

type fakeS3 struct {
	s3iface.S3API
	input *s3.PutObjectInput
	body  string
}

func (f *fakeS3) PutObjectWithContext(_ aws.Context, in *s3.PutObjectInput, _ ...request.Option) (*s3.PutObjectOutput, error) {
	f.input = in
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.body = string(data)
	return &s3.PutObjectOutput{}, nil
}

func TestS3ProviderUploadsPublicObject(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.jpg")
	require.NoError(t, os.WriteFile(path, []byte("img"), 0o644))
	file := LocalFile{Name: "x.jpg", Path: path, ContentType: "image/jpeg"}

	api := &fakeS3{}
	p := newS3Provider(api, S3Config{Region: "eu-west-1", Bucket: "posts"})
	p.now = func() time.Time { return time.Unix(1700000000, 0) }

	u, err := p.PublicURL(context.Background(), file)
	require.NoError(t, err)
	assert.Equal(t, "https://posts.s3.eu-west-1.amazonaws.com/instagram_uploads/1700000000_x.jpg", u)
	assert.Equal(t, "public-read", aws.StringValue(api.input.ACL))
	assert.Equal(t, "image/jpeg", aws.StringValue(api.input.ContentType))
	assert.Equal(t, "img", api.body)
}

func TestS3ProviderMinioURL(t *testing.T) {
	p := newS3Provider(&fakeS3{}, S3Config{Endpoint: "http://minio:9000", Bucket: "posts"})
	assert.Equal(t, "http://minio:9000/posts/k.jpg", p.objectURL("k.jpg"))

	p = newS3Provider(&fakeS3{}, S3Config{Endpoint: "https://s3.example.com", Bucket: "posts", UseSSL: true})
	assert.Equal(t, "https://s3.example.com/posts/k.jpg", p.objectURL("k.jpg"))
}

// fakeGCS answers the bucket lookup and object inserts of the JSON API.
type fakeGCS struct {
	bucket string
	query  url.Values
	body   string
}

func (f *fakeGCS) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/b/"+f.bucket):
		_, _ = io.WriteString(w, `{"name":"`+f.bucket+`"}`)
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/b/"+f.bucket+"/o"):
		f.query = r.URL.Query()
		data, _ := io.ReadAll(r.Body)
		f.body = string(data)
		_, _ = io.WriteString(w, `{"bucket":"`+f.bucket+`"}`)
	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error":{"code":404,"message":"The specified bucket does not exist."}}`)
	}
}

func TestGCSProviderUploadsPublicObject(t *testing.T) {
	fake := &fakeGCS{bucket: "posts"}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "x.jpg")
	require.NoError(t, os.WriteFile(path, []byte("img-bytes"), 0o644))

	p, err := NewGCSProvider(context.Background(), GCSConfig{Bucket: "posts", Endpoint: srv.URL + "/storage/v1/"})
	require.NoError(t, err)
	p.now = func() time.Time { return time.Unix(1700000000, 0) }

	u, err := p.PublicURL(context.Background(), LocalFile{Name: "x.jpg", Path: path, ContentType: "image/jpeg"})
	require.NoError(t, err)
	assert.Equal(t, "https://storage.googleapis.com/posts/instagram_uploads/1700000000_x.jpg", u)
	assert.Equal(t, "publicRead", fake.query.Get("predefinedAcl"))
	assert.Contains(t, fake.body, "img-bytes")
	assert.Contains(t, fake.body, "instagram_uploads/1700000000_x.jpg")
}

func TestGCSProviderRequiresBucket(t *testing.T) {
	srv := httptest.NewServer(&fakeGCS{bucket: "posts"})
	defer srv.Close()

	_, err := NewGCSProvider(context.Background(), GCSConfig{Bucket: "missing", Endpoint: srv.URL + "/storage/v1/"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")
}

func TestGCSProviderPublicBaseOverride(t *testing.T) {
	p := &GCSProvider{bucket: "posts", publicBase: "http://localhost:4443"}
	assert.Equal(t, "http://localhost:4443/posts/instagram_uploads/1_a%20b.jpg", p.objectURL("instagram_uploads/1_a b.jpg"))
}

func TestTunnelProviderPrefersConfiguredURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
	}))
	defer srv.Close()

	p := NewTunnelProvider(srv.URL+"/", "", "5555")
	u, err := p.PublicURL(context.Background(), LocalFile{Name: "x.jpg"})
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/uploads/x.jpg", u)
}

func TestTunnelProviderReadsAgentAPI(t *testing.T) {
	agent := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"tunnels":[
			{"public_url":"http://abc.ngrok.io","config":{"addr":"http://localhost:5555"}},
			{"public_url":"https://other.ngrok.io","config":{"addr":"http://localhost:8080"}},
			{"public_url":"https://abc.ngrok.io/","config":{"addr":"http://localhost:5555"}}
		]}`))
	}))
	defer agent.Close()

	p := NewTunnelProvider("", agent.URL, "5555")
	base, err := p.Detect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://abc.ngrok.io", base)
}

func TestTunnelProviderWithoutAgent(t *testing.T) {
	agent := httptest.NewServer(http.NotFoundHandler())
	agent.Close()

	u, err := NewTunnelProvider("", agent.URL, "5555").PublicURL(context.Background(), LocalFile{Name: "x.jpg"})
	require.NoError(t, err)
	assert.Empty(t, u)
}
