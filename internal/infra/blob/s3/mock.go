package s3

import (
	"bufio"
	"bytes"
	"crypto/md5" // #nosec G501 -- S3 ETags are MD5 digests
	"encoding/hex"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// NewMockForTests returns a Store whose client talks to an in-memory bucket
// through a fake transport. It answers PutObject, GetObject and HeadObject.
func NewMockForTests() *Store {
	bucket := &fakeBucket{objects: make(map[string]fakeObject)}
	client := s3.New(s3.Options{
		Region:       "us-east-1",
		Credentials:  credentials.NewStaticCredentialsProvider("test", "test", ""),
		HTTPClient:   &http.Client{Transport: bucket},
		BaseEndpoint: aws.String("https://s3.test.local"),
		UsePathStyle: true,
	})
	return &Store{client: client, bucket: "worksite-test"}
}

type fakeObject struct {
	body        []byte
	contentType string
	etag        string
	modified    time.Time
}

type fakeBucket struct {
	mu      sync.Mutex
	objects map[string]fakeObject
}

func (b *fakeBucket) RoundTrip(req *http.Request) (*http.Response, error) {
	// Path style: /<bucket>/<key>.
	_, key, _ := strings.Cut(strings.TrimPrefix(req.URL.Path, "/"), "/")

	b.mu.Lock()
	defer b.mu.Unlock()
	switch req.Method {
	case http.MethodPut:
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		if strings.Contains(req.Header.Get("Content-Encoding"), "aws-chunked") {
			if body, err = unchunk(body); err != nil {
				return reply(http.StatusBadRequest, nil, nil), nil
			}
		}
		sum := md5.Sum(body) // #nosec G401
		obj := fakeObject{body: body, contentType: req.Header.Get("Content-Type"), etag: hex.EncodeToString(sum[:]), modified: time.Now().UTC()}
		b.objects[key] = obj
		return reply(http.StatusOK, nil, http.Header{"Etag": {`"` + obj.etag + `"`}}), nil
	case http.MethodGet, http.MethodHead:
		obj, ok := b.objects[key]
		if !ok {
			if req.Method == http.MethodHead {
				return reply(http.StatusNotFound, nil, nil), nil
			}
			return reply(http.StatusNotFound,
				[]byte(`<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`),
				http.Header{"Content-Type": {"application/xml"}}), nil
		}
		h := http.Header{
			"Content-Length": {strconv.Itoa(len(obj.body))},
			"Content-Type":   {obj.contentType},
			"Etag":           {`"` + obj.etag + `"`},
			"Last-Modified":  {obj.modified.Format(http.TimeFormat)},
		}
		if req.Method == http.MethodHead {
			return reply(http.StatusOK, nil, h), nil
		}
		return reply(http.StatusOK, obj.body, h), nil
	}
	return reply(http.StatusNotImplemented, nil, nil), nil
}

func reply(status int, body []byte, h http.Header) *http.Response {
	if h == nil {
		h = http.Header{}
	}
	return &http.Response{
		StatusCode:    status,
		Header:        h,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
	}
}

// unchunk decodes an aws-chunked payload: hex-size[;ext] CRLF data CRLF,
// repeated until a zero-size chunk, followed by optional trailers.
func unchunk(b []byte) ([]byte, error) {
	r := bufio.NewReader(bytes.NewReader(b))
	var out bytes.Buffer
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return nil, err
		}
		sizeField, _, _ := strings.Cut(strings.TrimSpace(line), ";")
		n, err := strconv.ParseInt(sizeField, 16, 64)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return out.Bytes(), nil
		}
		if _, err := io.CopyN(&out, r, n); err != nil {
			return nil, err
		}
		if _, err := r.Discard(2); err != nil {
			return nil, err
		}
	}
}

