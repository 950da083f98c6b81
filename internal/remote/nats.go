package remote

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"git.home.luguber.info/inful/memobackup/internal/config"
	"git.home.luguber.info/inful/memobackup/internal/foundation/errors"
	"git.home.luguber.info/inful/memobackup/internal/logfields"
	"git.home.luguber.info/inful/memobackup/internal/observability"
)

// NATSClient stores backups in a JetStream key-value bucket keyed by file name.
// Non-silent uploads also publish a notice on the configured subject.
type NATSClient struct {
	cfg config.NATSRemoteConfig

	mu   sync.Mutex
	conn *nats.Conn
	kv   jetstream.KeyValue
}

// UploadNotice is published for non-silent uploads.
type UploadNotice struct {
	FileName   string    `json:"file_name"`
	Bucket     string    `json:"bucket"`
	Revision   uint64    `json:"revision"`
	Bytes      int       `json:"bytes"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// NewNATSClient creates a client for cfg. The connection is opened lazily.
func NewNATSClient(cfg config.NATSRemoteConfig) *NATSClient {
	if cfg.Bucket == "" {
		cfg.Bucket = config.DefaultNATSBucket
	}
	if cfg.Subject == "" {
		cfg.Subject = config.DefaultNATSSubject
	}
	return &NATSClient{cfg: cfg}
}

func (c *NATSClient) Name() string { return "nats" }

func (c *NATSClient) Upload(ctx context.Context, fileName string, content []byte, silent bool) (UploadResult, error) {
	if err := validateUpload(fileName, content); err != nil {
		return UploadResult{}, err
	}

	kv, conn, err := c.bucket(ctx)
	if err != nil {
		return UploadResult{}, err
	}

	rev, err := kv.Put(ctx, fileName, content)
	if err != nil {
		return UploadResult{}, classifyNATSError(err, "put")
	}

	if !silent {
		notice, _ := json.Marshal(UploadNotice{
			FileName:   fileName,
			Bucket:     c.cfg.Bucket,
			Revision:   rev,
			Bytes:      len(content),
			UploadedAt: time.Now().UTC(),
		})
		// The backup is already stored; a lost notice is not worth failing the upload for.
		if perr := conn.Publish(c.cfg.Subject, notice); perr != nil {
			observability.WarnContext(ctx, "Failed to publish upload notice", slog.String("subject", c.cfg.Subject), logfields.Error(perr))
		}
	}

	return UploadResult{
		FileName: fileName,
		Location: c.cfg.Bucket + "/" + fileName + "@" + strconv.FormatUint(rev, 10),
		Bytes:    len(content),
	}, nil
}

// Check connects and reads the bucket status.
func (c *NATSClient) Check(ctx context.Context) error {
	kv, _, err := c.bucket(ctx)
	if err != nil {
		return err
	}
	if _, err := kv.Status(ctx); err != nil {
		return classifyNATSError(err, "status")
	}
	return nil
}

// Close drops the connection; the next call reconnects.
func (c *NATSClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
		c.kv = nil
	}
	return nil
}

func (c *NATSClient) bucket(ctx context.Context) (jetstream.KeyValue, *nats.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.kv != nil && c.conn != nil && !c.conn.IsClosed() {
		return c.kv, c.conn, nil
	}
	if c.cfg.URL == "" {
		return nil, nil, errors.NotConnectedError("no NATS server configured").Build()
	}

	opts := []nats.Option{nats.Name("memobackup")}
	if deadline, ok := ctx.Deadline(); ok {
		opts = append(opts, nats.Timeout(time.Until(deadline)))
	}
	conn, err := nats.Connect(c.cfg.URL, opts...)
	if err != nil {
		return nil, nil, classifyNATSError(err, "connect")
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, nil, classifyNATSError(err, "jetstream")
	}

	kv, err := js.KeyValue(ctx, c.cfg.Bucket)
	if stderrors.Is(err, jetstream.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
			Bucket:      c.cfg.Bucket,
			Description: "memobackup snapshots",
			History:     5,
		})
		if err == nil {
			slog.Info("Created KV bucket for backups", slog.String("bucket", c.cfg.Bucket))
		}
	}
	if err != nil {
		conn.Close()
		return nil, nil, classifyNATSError(err, "bucket")
	}

	c.conn = conn
	c.kv = kv
	return kv, conn, nil
}

// classifyNATSError translates nats.go and jetstream errors into classified errors.
func classifyNATSError(err error, op string) error {
	build := func(b *errors.ErrorBuilder) error {
		return b.WithCause(err).WithContext("op", op).Build()
	}
	switch {
	case stderrors.Is(err, nats.ErrAuthorization), stderrors.Is(err, nats.ErrAuthExpired),
		stderrors.Is(err, nats.ErrAuthRevoked), stderrors.Is(err, nats.ErrPermissionViolation):
		return build(errors.AuthError("NATS authorization failed"))
	case stderrors.Is(err, jetstream.ErrJetStreamNotEnabled), stderrors.Is(err, jetstream.ErrJetStreamNotEnabledForAccount):
		return build(errors.NotConnectedError("JetStream is not enabled on the NATS server"))
	case stderrors.Is(err, jetstream.ErrInvalidKey), stderrors.Is(err, jetstream.ErrInvalidBucketName),
		stderrors.Is(err, nats.ErrMaxPayload), stderrors.Is(err, nats.ErrBadSubject):
		return build(errors.MalformedRequestError(fmt.Sprintf("NATS rejected the request (%s)", op)))
	default:
		// no servers, timeouts, closed connections and cluster unavailability
		return build(errors.NetworkError(fmt.Sprintf("NATS %s failed", op)))
	}
}

var _ Client = (*NATSClient)(nil)
