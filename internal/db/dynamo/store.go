// Package dynamo implements db.Store on a single DynamoDB table.
//
// Table schema:
//   - Partition key: pk (string) - the hash key
//   - fields (map of strings), version (number), expires_at (number, unix
//     seconds; enable DynamoDB TTL on it to reclaim expired markers)
//
// Create table with:
//
//	aws dynamodb create-table \
//	  --table-name coursedex \
//	  --attribute-definitions AttributeName=pk,AttributeType=S \
//	  --key-schema AttributeName=pk,KeyType=HASH \
//	  --billing-mode PAY_PER_REQUEST
//
// Transactions commit through TransactWriteItems with per-item version
// conditions. The driver has no sorted secondary index, so it does not
// implement db.SortedLister; callers fall back to Scan.
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"path"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/kailas-cloud/coursedex/internal/db"
)

var _ db.Store = (*Store)(nil)

const (
	attrPK        = "pk"
	attrFields    = "fields"
	attrVersion   = "version"
	attrExpiresAt = "expires_at"

	// hsetMaxAttempts bounds the internal conflict retries of non-transactional HSet.
	hsetMaxAttempts = 5
)

// Client is the subset of the DynamoDB API the store uses.
type Client interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// Config holds connection parameters for a DynamoDB store.
type Config struct {
	Table    string
	Region   string
	Endpoint string // optional, e.g. DynamoDB Local
}

// Store implements db.Store on DynamoDB.
type Store struct {
	client Client
	table  string
	now    func() time.Time
}

// NewStore loads the default AWS credential chain and creates a client.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Table == "" {
		return nil, fmt.Errorf("table is required")
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return NewStoreWithClient(client, cfg.Table), nil
}

// NewStoreWithClient wraps an existing client.
func NewStoreWithClient(c Client, table string) *Store {
	return &Store{client: c, table: table, now: time.Now}
}

// Ping reads a sentinel key; any successful response means the table is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if _, err := s.get(ctx, "__ping__"); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Close is a no-op; the SDK client holds no resources to release.
func (s *Store) Close() {}

// WaitForReady polls Ping until the table responds or timeout expires.
func (s *Store) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for database: %w", ctx.Err())
		case <-ticker.C:
			if err := s.Ping(ctx); err == nil {
				return nil
			}
		}
	}
}

// HSet merges fields into key through a single-key transaction, retrying on conflict.
func (s *Store) HSet(ctx context.Context, key string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	var err error
	for range hsetMaxAttempts {
		err = s.Transact(ctx, []string{key}, func(_ context.Context, tx db.Tx) error {
			tx.HSet(key, fields)
			return nil
		})
		if !errors.Is(err, db.ErrTxConflict) {
			return err
		}
	}
	return &db.Error{Op: db.OpHSet, Err: err}
}

// HGetAll returns the hash or an empty map.
func (s *Store) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	it, err := s.get(ctx, key)
	if err != nil {
		return nil, &db.Error{Op: db.OpHGetAll, Err: err}
	}
	if !it.live(s.now()) {
		return map[string]string{}, nil
	}
	return it.fields, nil
}

// HGetAllMulti reads keys one by one with consistent reads.
func (s *Store) HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	out := make([]map[string]string, len(keys))
	for i, k := range keys {
		m, err := s.HGetAll(ctx, k)
		if err != nil {
			return nil, err
		}
		out[i] = m
	}
	return out, nil
}

// Del removes key.
func (s *Store) Del(ctx context.Context, key string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.table),
		Key:       map[string]types.AttributeValue{attrPK: &types.AttributeValueMemberS{Value: key}},
	})
	if err != nil {
		return &db.Error{Op: db.OpDel, Err: err}
	}
	return nil
}

// Exists reports whether key holds a live hash.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	it, err := s.get(ctx, key)
	if err != nil {
		return false, &db.Error{Op: db.OpExists, Err: err}
	}
	return it.live(s.now()), nil
}

// Scan pages through the table with a begins_with filter on the literal
// prefix of pattern, then applies the full glob.
func (s *Store) Scan(ctx context.Context, pattern string) ([]string, error) {
	prefix := pattern
	if i := strings.IndexAny(pattern, "*?["); i >= 0 {
		prefix = pattern[:i]
	}

	input := &dynamodb.ScanInput{
		TableName:            aws.String(s.table),
		ConsistentRead:       aws.Bool(true),
		ProjectionExpression: aws.String("#pk, #exp"),
		ExpressionAttributeNames: map[string]string{
			"#pk":  attrPK,
			"#exp": attrExpiresAt,
		},
	}
	if prefix != "" {
		input.FilterExpression = aws.String("begins_with(#pk, :prefix)")
		input.ExpressionAttributeValues = map[string]types.AttributeValue{
			":prefix": &types.AttributeValueMemberS{Value: prefix},
		}
	}

	var keys []string
	now := s.now()
	for {
		resp, err := s.client.Scan(ctx, input)
		if err != nil {
			return nil, &db.Error{Op: db.OpScan, Err: err}
		}
		for _, raw := range resp.Items {
			it, err := decodeItem(raw)
			if err != nil || !it.live(now) {
				continue
			}
			ok, err := path.Match(pattern, it.key)
			if err != nil {
				return nil, &db.Error{Op: db.OpScan, Err: err}
			}
			if ok {
				keys = append(keys, it.key)
			}
		}
		if len(resp.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = resp.LastEvaluatedKey
	}

	slices.Sort(keys)
	return keys, nil
}

func (s *Store) get(ctx context.Context, key string) (item, error) {
	resp, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            map[string]types.AttributeValue{attrPK: &types.AttributeValueMemberS{Value: key}},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return item{}, err
	}
	if len(resp.Item) == 0 {
		return item{key: key, fields: map[string]string{}}, nil
	}
	return decodeItem(resp.Item)
}

// item is the decoded form of a table row. exists=false means no row.
type item struct {
	key       string
	fields    map[string]string
	version   int64
	expiresAt int64
	exists    bool
}

func (it item) live(now time.Time) bool {
	if !it.exists {
		return false
	}
	return it.expiresAt == 0 || now.Unix() < it.expiresAt
}

func decodeItem(raw map[string]types.AttributeValue) (item, error) {
	pk, ok := raw[attrPK].(*types.AttributeValueMemberS)
	if !ok {
		return item{}, errors.New("invalid pk attribute")
	}
	it := item{key: pk.Value, fields: map[string]string{}, exists: true}

	if m, ok := raw[attrFields].(*types.AttributeValueMemberM); ok {
		for k, v := range m.Value {
			if sv, ok := v.(*types.AttributeValueMemberS); ok {
				it.fields[k] = sv.Value
			}
		}
	}
	if n, ok := raw[attrVersion].(*types.AttributeValueMemberN); ok {
		v, err := strconv.ParseInt(n.Value, 10, 64)
		if err != nil {
			return item{}, fmt.Errorf("parse version: %w", err)
		}
		it.version = v
	}
	if n, ok := raw[attrExpiresAt].(*types.AttributeValueMemberN); ok {
		v, err := strconv.ParseInt(n.Value, 10, 64)
		if err != nil {
			return item{}, fmt.Errorf("parse expires_at: %w", err)
		}
		it.expiresAt = v
	}
	return it, nil
}

func encodeItem(it item) map[string]types.AttributeValue {
	fields := make(map[string]types.AttributeValue, len(it.fields))
	for k, v := range it.fields {
		fields[k] = &types.AttributeValueMemberS{Value: v}
	}
	out := map[string]types.AttributeValue{
		attrPK:      &types.AttributeValueMemberS{Value: it.key},
		attrFields:  &types.AttributeValueMemberM{Value: fields},
		attrVersion: &types.AttributeValueMemberN{Value: strconv.FormatInt(it.version, 10)},
	}
	if it.expiresAt > 0 {
		out[attrExpiresAt] = &types.AttributeValueMemberN{Value: strconv.FormatInt(it.expiresAt, 10)}
	}
	return out
}
