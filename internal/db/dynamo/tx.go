package dynamo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/kailas-cloud/coursedex/internal/db"
)

// maxTransactItems is the DynamoDB limit for one TransactWriteItems call.
const maxTransactItems = 100

// Transact implements db.Transactor. Every watched key becomes either a
// conditional Put (written) or a ConditionCheck (read only) in one
// TransactWriteItems call. A cancelled transaction is db.ErrTxConflict.
func (s *Store) Transact(ctx context.Context, keys []string, fn db.TxFunc) error {
	keys = db.UniqueKeys(keys)
	if len(keys) == 0 {
		return errors.New("transact: at least one key is required")
	}
	if len(keys) > maxTransactItems {
		return fmt.Errorf("transact: %d keys exceeds limit of %d", len(keys), maxTransactItems)
	}

	now := s.now()
	items := make(map[string]item, len(keys))
	snapshot := make(map[string]map[string]string, len(keys))
	for _, k := range keys {
		it, err := s.get(ctx, k)
		if err != nil {
			return &db.Error{Op: db.OpWatch, Err: err}
		}
		items[k] = it
		if it.live(now) {
			snapshot[k] = it.fields
		} else {
			snapshot[k] = map[string]string{}
		}
	}

	buf := db.NewTxBuffer(snapshot)
	if err := fn(ctx, buf); err != nil {
		return err
	}
	writes := buf.Writes()
	if len(writes) == 0 {
		return nil
	}

	written := make(map[string]bool, len(writes))
	var ops []types.TransactWriteItem
	for _, w := range writes {
		written[w.Key] = true
		prev, watched := items[w.Key]
		if !watched {
			prev = item{key: w.Key}
		}
		ops = append(ops, types.TransactWriteItem{Put: s.putFor(prev, w, now)})
	}
	for _, k := range keys {
		if written[k] {
			continue
		}
		expr, values := versionCondition(items[k])
		ops = append(ops, types.TransactWriteItem{ConditionCheck: &types.ConditionCheck{
			TableName:                 aws.String(s.table),
			Key:                       map[string]types.AttributeValue{attrPK: &types.AttributeValueMemberS{Value: k}},
			ConditionExpression:       aws.String(expr),
			ExpressionAttributeValues: values,
		}})
	}
	if len(ops) > maxTransactItems {
		return fmt.Errorf("transact: %d operations exceeds limit of %d", len(ops), maxTransactItems)
	}

	_, err := s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: ops})
	if err != nil {
		if isConflict(err) {
			return db.ErrTxConflict
		}
		return &db.Error{Op: db.OpExec, Err: err}
	}
	return nil
}

// putFor builds the full replacement row: live fields merged with the write,
// version bumped, TTL carried over or replaced.
func (s *Store) putFor(prev item, w db.TxWrite, now time.Time) *types.Put {
	next := item{key: w.Key, fields: map[string]string{}, version: prev.version + 1, exists: true}
	if prev.live(now) {
		for k, v := range prev.fields {
			next.fields[k] = v
		}
		next.expiresAt = prev.expiresAt
	}
	for k, v := range w.Fields {
		next.fields[k] = v
	}
	if w.TTL > 0 {
		next.expiresAt = now.Add(w.TTL).Unix()
	}

	expr, values := versionCondition(prev)
	return &types.Put{
		TableName:                 aws.String(s.table),
		Item:                      encodeItem(next),
		ConditionExpression:       aws.String(expr),
		ExpressionAttributeValues: values,
	}
}

func versionCondition(prev item) (string, map[string]types.AttributeValue) {
	if !prev.exists {
		return "attribute_not_exists(" + attrPK + ")", nil
	}
	return attrVersion + " = :v", map[string]types.AttributeValue{
		":v": &types.AttributeValueMemberN{Value: strconv.FormatInt(prev.version, 10)},
	}
}

func isConflict(err error) bool {
	var canceled *types.TransactionCanceledException
	if errors.As(err, &canceled) {
		for _, r := range canceled.CancellationReasons {
			code := aws.ToString(r.Code)
			if code == "ConditionalCheckFailed" || code == "TransactionConflict" {
				return true
			}
		}
		return false
	}
	var condErr *types.ConditionalCheckFailedException
	return errors.As(err, &condErr)
}
