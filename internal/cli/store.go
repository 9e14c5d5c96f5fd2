package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/aretw0/onestep/pkg/adapters/dynamo"
	"github.com/aretw0/onestep/pkg/adapters/file"
	"github.com/aretw0/onestep/pkg/adapters/memory"
	"github.com/aretw0/onestep/pkg/adapters/redis"
	"github.com/aretw0/onestep/pkg/adapters/sqlstore"
	"github.com/aretw0/onestep/pkg/persistence/middleware"
	"github.com/aretw0/onestep/pkg/ports"
)

// Store kinds accepted by --store.
const (
	StoreMemory   = "memory"
	StoreFile     = "file"
	StoreRedis    = "redis"
	StoreSQLite   = "sqlite"
	StoreDynamoDB = "dynamodb"
)

// StoreKinds lists the accepted --store values.
var StoreKinds = []string{StoreMemory, StoreFile, StoreRedis, StoreSQLite, StoreDynamoDB}

// StoreOptions selects and configures the checkpoint backend.
type StoreOptions struct {
	Kind          string
	Dir           string
	RedisAddr     string
	RedisPassword string
	RedisTTL      string
	SQLitePath    string
	DynamoTable   string
	EncryptionKey string
	Redact        []string
}

// Backend is an opened checkpoint store, with the locker the backend offers, if any.
type Backend struct {
	Store  ports.CheckpointStore
	Locker ports.Locker
	closer io.Closer
}

// Close releases connections held by the backend.
func (b *Backend) Close() error {
	if b.closer == nil {
		return nil
	}
	return b.closer.Close()
}

// OpenStore builds the backend named by opts and wraps it in the configured middleware.
func OpenStore(ctx context.Context, opts StoreOptions) (*Backend, error) {
	b := &Backend{}

	switch strings.ToLower(opts.Kind) {
	case "", StoreMemory:
		b.Store = memory.NewStore()
	case StoreFile:
		b.Store = file.New(opts.Dir)
	case StoreRedis:
		var redisOpts []redis.Option
		if opts.RedisTTL != "" {
			ttl, err := parseDuration(opts.RedisTTL)
			if err != nil {
				return nil, fmt.Errorf("invalid --redis-ttl: %w", err)
			}
			redisOpts = append(redisOpts, redis.WithTTL(ttl))
		}
		rs := redis.New(opts.RedisAddr, opts.RedisPassword, 0, redisOpts...)
		if err := rs.Client().Ping(ctx).Err(); err != nil {
			_ = rs.Close()
			return nil, fmt.Errorf("failed to reach redis at %s: %w", opts.RedisAddr, err)
		}
		b.Store, b.closer = rs, rs
		b.Locker = redis.NewLocker(rs.Client(), redis.DefaultPrefix)
	case StoreSQLite:
		ss, err := sqlstore.Open(opts.SQLitePath)
		if err != nil {
			return nil, err
		}
		b.Store, b.closer = ss, ss
	case StoreDynamoDB:
		cfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load aws config: %w", err)
		}
		ds, err := dynamo.New(awsdynamodb.NewFromConfig(cfg), opts.DynamoTable)
		if err != nil {
			return nil, err
		}
		b.Store = ds
	default:
		return nil, fmt.Errorf("unknown store %q (want one of %s)", opts.Kind, strings.Join(StoreKinds, ", "))
	}

	mws, err := storeMiddleware(opts)
	if err != nil {
		_ = b.Close()
		return nil, err
	}
	b.Store = middleware.Chain(b.Store, mws...)
	return b, nil
}

// storeMiddleware orders redaction before encryption so the ciphertext never holds
// unmasked content.
func storeMiddleware(opts StoreOptions) ([]middleware.Middleware, error) {
	var mws []middleware.Middleware
	if len(opts.Redact) > 0 {
		mw, err := middleware.NewRedactionMiddleware(opts.Redact)
		if err != nil {
			return nil, fmt.Errorf("invalid --redact pattern: %w", err)
		}
		mws = append(mws, mw)
	}
	if opts.EncryptionKey != "" {
		key, err := middleware.ParseKey(opts.EncryptionKey)
		if err != nil {
			return nil, err
		}
		mw, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: key})
		if err != nil {
			return nil, err
		}
		mws = append(mws, mw)
	}
	return mws, nil
}
