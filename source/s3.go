package source

import (
	"fmt"
	"io"

	"col-eval-go/config"

	"github.com/minio/minio-go"
)

// RemoteObject is an object-store handle that serves both access patterns the
// sources need: a forward stream for CSV and ReaderAt/Seeker for parquet.
type RemoteObject struct {
	client *minio.Client
	bucket string
	key    string

	// raw streaming object for CSV
	stream *minio.Object
}

func OpenRemoteObject(key string) (*RemoteObject, error) {
	cfg := config.GetConfig()
	secrets := cfg.Secrets

	client, err := minio.New(secrets.EndpointURL, secrets.AccessKey, secrets.SecretKey, true)
	if err != nil {
		return nil, err
	}

	info, err := client.StatObject(secrets.BucketName, key, minio.StatObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to stat object: %w", err)
	}
	if limit := int64(cfg.Eval.MaxDownloadSizeMB) * 1024 * 1024; limit > 0 && info.Size > limit {
		return nil, fmt.Errorf("object %s is %d bytes, over the %dMB download limit",
			key, info.Size, cfg.Eval.MaxDownloadSizeMB)
	}

	obj, err := client.GetObject(secrets.BucketName, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}

	return &RemoteObject{
		client: client,
		bucket: secrets.BucketName,
		key:    key,
		stream: obj,
	}, nil
}

func (r *RemoteObject) Stream() io.Reader {
	return r.stream
}

// ReadAt implements io.ReaderAt for the parquet reader.
func (r *RemoteObject) ReadAt(p []byte, off int64) (int, error) {
	opts := minio.GetObjectOptions{}
	_ = opts.SetRange(off, off+int64(len(p))-1)

	obj, err := r.client.GetObject(r.bucket, r.key, opts)
	if err != nil {
		return 0, err
	}
	defer obj.Close()
	return io.ReadFull(obj, p)
}

func (r *RemoteObject) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		return offset, nil
	case io.SeekEnd:
		info, err := r.client.StatObject(r.bucket, r.key, minio.StatObjectOptions{})
		if err != nil {
			return 0, fmt.Errorf("failed to stat object: %w", err)
		}
		return info.Size, nil
	default:
		return 0, fmt.Errorf("unsupported seek mode for remote object: %d", whence)
	}
}

func (r *RemoteObject) Close() error {
	if r.stream != nil {
		return r.stream.Close()
	}
	return nil
}
