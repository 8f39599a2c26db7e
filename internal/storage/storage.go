package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"github.com/ruyvieira/openai-whisper/internal/config"
	"github.com/ruyvieira/openai-whisper/internal/failure"
)

// Store abstracts the backends audio is read from and text is written to.
type Store interface {
	// Open returns a reader for the object at key.
	Open(ctx context.Context, key string) (io.ReadCloser, error)

	// Save replaces the object at key with data. A reader never sees a
	// partially written object.
	Save(ctx context.Context, key string, data []byte) error

	// Type returns "local" or "s3".
	Type() string
}

const s3Scheme = "s3://"

// Location is a parsed input or output argument: either a local path or
// s3://bucket/key.
type Location struct {
	Bucket string // empty for local paths
	Key    string
}

// ParseLocation parses a command-line location.
func ParseLocation(s string) (Location, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Location{}, failure.Configf("empty location")
	}
	rest, ok := strings.CutPrefix(s, s3Scheme)
	if !ok {
		return Location{Key: s}, nil
	}
	bucket, key, _ := strings.Cut(rest, "/")
	if bucket == "" || key == "" {
		return Location{}, failure.Configf("invalid location %q: want s3://bucket/key", s)
	}
	return Location{Bucket: bucket, Key: key}, nil
}

// Remote reports whether the location is an object store key.
func (l Location) Remote() bool { return l.Bucket != "" }

// Name returns the final path element, used as the upload filename.
func (l Location) Name() string {
	if l.Remote() {
		return path.Base(l.Key)
	}
	return filepath.Base(l.Key)
}

func (l Location) String() string {
	if l.Remote() {
		return s3Scheme + l.Bucket + "/" + l.Key
	}
	return l.Key
}

// Router resolves locations to stores. The S3 client is only built the
// first time an s3:// location is used.
type Router struct {
	cfg   config.S3Config
	log   zerolog.Logger
	local *LocalStore

	once      sync.Once
	client    *s3.Client
	clientErr error
}

// NewRouter creates a Router. Local paths resolve relative to the working
// directory.
func NewRouter(cfg config.S3Config, log zerolog.Logger) *Router {
	return &Router{
		cfg:   cfg,
		log:   log.With().Str("component", "storage").Logger(),
		local: NewLocalStore(""),
	}
}

// Store returns the backend serving loc.
func (r *Router) Store(ctx context.Context, loc Location) (Store, error) {
	if !loc.Remote() {
		return r.local, nil
	}
	r.once.Do(func() {
		r.client, r.clientErr = newS3Client(ctx, r.cfg)
		if r.clientErr == nil {
			r.log.Debug().Str("region", r.cfg.Region).Str("endpoint", r.cfg.Endpoint).Msg("s3 client ready")
		}
	})
	if r.clientErr != nil {
		return nil, failure.Wrap(failure.ErrConfiguration, "s3 init", r.clientErr)
	}
	return NewS3Store(r.client, loc.Bucket, r.log), nil
}

// ReadAll loads the whole object at loc.
func (r *Router) ReadAll(ctx context.Context, loc Location) ([]byte, error) {
	st, err := r.Store(ctx, loc)
	if err != nil {
		return nil, err
	}
	rc, err := st.Open(ctx, loc.Key)
	if err != nil {
		return nil, failure.Wrap(failure.ErrIO, "open "+loc.String(), err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, failure.Wrap(failure.ErrIO, "read "+loc.String(), err)
	}
	r.log.Debug().Str("location", loc.String()).Int("bytes", len(data)).Msg("read input")
	return data, nil
}

// Write stores data at loc.
func (r *Router) Write(ctx context.Context, loc Location, data []byte) error {
	st, err := r.Store(ctx, loc)
	if err != nil {
		return err
	}
	if err := st.Save(ctx, loc.Key, data); err != nil {
		return failure.Wrap(failure.ErrIO, fmt.Sprintf("write %s (%s)", loc, st.Type()), err)
	}
	r.log.Debug().Str("location", loc.String()).Int("bytes", len(data)).Msg("wrote output")
	return nil
}
