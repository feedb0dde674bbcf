// Package awsmock holds in-memory fakes of the AWS client interfaces for tests.
package awsmock

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type item = map[string]types.AttributeValue

// Dynamo stores items per table: table -> pk value -> item. It understands the
// condition and update expressions the stores issue:
// attribute_exists / attribute_not_exists / = / <> joined by AND, and SET lists.
type Dynamo struct {
	mu       sync.Mutex
	tables   map[string]map[string]item
	keyAttrs []string
	failures map[string]error

	PutCalls      int
	GetCalls      int
	UpdateCalls   int
	QueryCalls    int
	TransactCalls int
}

// NewDynamo returns an empty fake. Items are keyed by the first of keyAttrs
// they carry; the default covers bookings, payments and idempotency tables.
func NewDynamo(keyAttrs ...string) *Dynamo {
	if len(keyAttrs) == 0 {
		keyAttrs = []string{"idempotency_key", "booking_id"}
	}
	return &Dynamo{
		tables:   map[string]map[string]item{},
		keyAttrs: keyAttrs,
		failures: map[string]error{},
	}
}

// FailOn makes every call of op ("PutItem", "GetItem", "UpdateItem", "Query",
// "TransactWriteItems") return err until cleared with a nil err.
func (m *Dynamo) FailOn(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, op)
		return
	}
	m.failures[op] = err
}

// Item returns a stored item, or nil.
func (m *Dynamo) Item(table, pk string) map[string]types.AttributeValue {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tables[table][pk]
}

// Count returns how many items a table holds.
func (m *Dynamo) Count(table string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tables[table])
}

func (m *Dynamo) table(name string) map[string]item {
	t, ok := m.tables[name]
	if !ok {
		t = map[string]item{}
		m.tables[name] = t
	}
	return t
}

func (m *Dynamo) pk(it item) (string, string, error) {
	for _, attr := range m.keyAttrs {
		if v, ok := it[attr]; ok {
			s, ok := v.(*types.AttributeValueMemberS)
			if !ok {
				return "", "", fmt.Errorf("key %s is not a string", attr)
			}
			return attr, s.Value, nil
		}
	}
	return "", "", errors.New("no primary key in item")
}

func (m *Dynamo) PutItem(_ context.Context, params *dyn.PutItemInput, _ ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PutCalls++
	if err := m.failures["PutItem"]; err != nil {
		return nil, err
	}
	_, pk, err := m.pk(params.Item)
	if err != nil {
		return nil, err
	}
	tbl := m.table(*params.TableName)
	if !evaluate(params.ConditionExpression, tbl[pk], params.ExpressionAttributeNames, params.ExpressionAttributeValues) {
		return nil, &types.ConditionalCheckFailedException{Message: strPtr("The conditional request failed")}
	}
	tbl[pk] = clone(params.Item)
	return &dyn.PutItemOutput{}, nil
}

func (m *Dynamo) GetItem(_ context.Context, params *dyn.GetItemInput, _ ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GetCalls++
	if err := m.failures["GetItem"]; err != nil {
		return nil, err
	}
	_, pk, err := m.pk(params.Key)
	if err != nil {
		return nil, err
	}
	it, ok := m.table(*params.TableName)[pk]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: clone(it)}, nil
}

func (m *Dynamo) UpdateItem(_ context.Context, params *dyn.UpdateItemInput, _ ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UpdateCalls++
	if err := m.failures["UpdateItem"]; err != nil {
		return nil, err
	}
	tbl := m.table(*params.TableName)
	attr, pk, err := m.pk(params.Key)
	if err != nil {
		return nil, err
	}
	current := tbl[pk]
	if !evaluate(params.ConditionExpression, current, params.ExpressionAttributeNames, params.ExpressionAttributeValues) {
		return nil, &types.ConditionalCheckFailedException{Message: strPtr("The conditional request failed")}
	}
	next, err := applyUpdate(current, attr, params.Key[attr], params.UpdateExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}
	tbl[pk] = next
	return &dyn.UpdateItemOutput{Attributes: clone(next)}, nil
}

// Query supports a single equality key condition; the index name is ignored.
func (m *Dynamo) Query(_ context.Context, params *dyn.QueryInput, _ ...func(*dyn.Options)) (*dyn.QueryOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.QueryCalls++
	if err := m.failures["Query"]; err != nil {
		return nil, err
	}
	if params.KeyConditionExpression == nil {
		return nil, errors.New("key condition required")
	}
	match := eqClause.FindStringSubmatch(strings.TrimSpace(*params.KeyConditionExpression))
	if match == nil {
		return nil, fmt.Errorf("unsupported key condition %q", *params.KeyConditionExpression)
	}
	name := resolveName(match[1], params.ExpressionAttributeNames)
	want := params.ExpressionAttributeValues[match[3]]

	out := &dyn.QueryOutput{}
	for _, it := range m.table(*params.TableName) {
		if equal(it[name], want) {
			out.Items = append(out.Items, clone(it))
		}
	}
	out.Count = int32(len(out.Items))
	return out, nil
}

// TransactWriteItems checks every condition before applying any write.
func (m *Dynamo) TransactWriteItems(_ context.Context, params *dyn.TransactWriteItemsInput, _ ...func(*dyn.Options)) (*dyn.TransactWriteItemsOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TransactCalls++
	if err := m.failures["TransactWriteItems"]; err != nil {
		return nil, err
	}

	reasons := make([]types.CancellationReason, len(params.TransactItems))
	canceled := false
	for i, ti := range params.TransactItems {
		reasons[i] = types.CancellationReason{Code: strPtr("None")}
		ok, err := m.checkTransactItem(ti)
		if err != nil {
			return nil, err
		}
		if !ok {
			reasons[i] = types.CancellationReason{
				Code:    strPtr("ConditionalCheckFailed"),
				Message: strPtr("The conditional request failed"),
			}
			canceled = true
		}
	}
	if canceled {
		return nil, &types.TransactionCanceledException{
			Message:             strPtr("Transaction cancelled, please refer cancellation reasons for specific reasons"),
			CancellationReasons: reasons,
		}
	}

	for _, ti := range params.TransactItems {
		switch {
		case ti.Put != nil:
			_, pk, _ := m.pk(ti.Put.Item)
			m.table(*ti.Put.TableName)[pk] = clone(ti.Put.Item)
		case ti.Update != nil:
			attr, pk, _ := m.pk(ti.Update.Key)
			tbl := m.table(*ti.Update.TableName)
			next, err := applyUpdate(tbl[pk], attr, ti.Update.Key[attr], ti.Update.UpdateExpression, ti.Update.ExpressionAttributeNames, ti.Update.ExpressionAttributeValues)
			if err != nil {
				return nil, err
			}
			tbl[pk] = next
		}
	}
	return &dyn.TransactWriteItemsOutput{}, nil
}

func (m *Dynamo) checkTransactItem(ti types.TransactWriteItem) (bool, error) {
	switch {
	case ti.Put != nil:
		_, pk, err := m.pk(ti.Put.Item)
		if err != nil {
			return false, err
		}
		current := m.table(*ti.Put.TableName)[pk]
		return evaluate(ti.Put.ConditionExpression, current, ti.Put.ExpressionAttributeNames, ti.Put.ExpressionAttributeValues), nil
	case ti.Update != nil:
		_, pk, err := m.pk(ti.Update.Key)
		if err != nil {
			return false, err
		}
		current := m.table(*ti.Update.TableName)[pk]
		return evaluate(ti.Update.ConditionExpression, current, ti.Update.ExpressionAttributeNames, ti.Update.ExpressionAttributeValues), nil
	case ti.ConditionCheck != nil:
		_, pk, err := m.pk(ti.ConditionCheck.Key)
		if err != nil {
			return false, err
		}
		current := m.table(*ti.ConditionCheck.TableName)[pk]
		return evaluate(ti.ConditionCheck.ConditionExpression, current, ti.ConditionCheck.ExpressionAttributeNames, ti.ConditionCheck.ExpressionAttributeValues), nil
	default:
		return false, errors.New("unsupported transact item")
	}
}

var (
	existsClause    = regexp.MustCompile(`^attribute_exists\(\s*([#\w]+)\s*\)$`)
	notExistsClause = regexp.MustCompile(`^attribute_not_exists\(\s*([#\w]+)\s*\)$`)
	eqClause        = regexp.MustCompile(`^([#\w]+)\s*(=|<>)\s*(:\w+)$`)
	andSplit        = regexp.MustCompile(`(?i)\s+AND\s+`)
)

func evaluate(expr *string, current item, names map[string]string, values map[string]types.AttributeValue) bool {
	if expr == nil || strings.TrimSpace(*expr) == "" {
		return true
	}
	for _, clause := range andSplit.Split(strings.TrimSpace(*expr), -1) {
		clause = strings.TrimSpace(clause)
		switch {
		case existsClause.MatchString(clause):
			name := resolveName(existsClause.FindStringSubmatch(clause)[1], names)
			if _, ok := current[name]; !ok {
				return false
			}
		case notExistsClause.MatchString(clause):
			name := resolveName(notExistsClause.FindStringSubmatch(clause)[1], names)
			if _, ok := current[name]; ok {
				return false
			}
		case eqClause.MatchString(clause):
			m := eqClause.FindStringSubmatch(clause)
			got := current[resolveName(m[1], names)]
			same := equal(got, values[m[3]])
			if (m[2] == "=" && !same) || (m[2] == "<>" && same) {
				return false
			}
		default:
			panic(fmt.Sprintf("awsmock: unsupported condition %q", clause))
		}
	}
	return true
}

func applyUpdate(current item, keyAttr string, key types.AttributeValue, expr *string, names map[string]string, values map[string]types.AttributeValue) (item, error) {
	next := clone(current)
	if next == nil {
		next = item{keyAttr: key}
	}
	if expr == nil {
		return next, nil
	}
	body := strings.TrimSpace(*expr)
	if !strings.HasPrefix(strings.ToUpper(body), "SET ") {
		return nil, fmt.Errorf("unsupported update expression %q", body)
	}
	for _, assignment := range strings.Split(body[4:], ",") {
		parts := strings.SplitN(assignment, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("bad assignment %q", assignment)
		}
		name := resolveName(strings.TrimSpace(parts[0]), names)
		placeholder := strings.TrimSpace(parts[1])
		v, ok := values[placeholder]
		if !ok {
			return nil, fmt.Errorf("missing value %s", placeholder)
		}
		next[name] = v
	}
	return next, nil
}

func resolveName(token string, names map[string]string) string {
	if strings.HasPrefix(token, "#") {
		if n, ok := names[token]; ok {
			return n
		}
	}
	return token
}

func equal(a, b types.AttributeValue) bool {
	switch av := a.(type) {
	case *types.AttributeValueMemberS:
		bv, ok := b.(*types.AttributeValueMemberS)
		return ok && av.Value == bv.Value
	case *types.AttributeValueMemberN:
		bv, ok := b.(*types.AttributeValueMemberN)
		return ok && av.Value == bv.Value
	case *types.AttributeValueMemberBOOL:
		bv, ok := b.(*types.AttributeValueMemberBOOL)
		return ok && av.Value == bv.Value
	default:
		return false
	}
}

func clone(it item) item {
	if it == nil {
		return nil
	}
	out := make(item, len(it))
	for k, v := range it {
		out[k] = v
	}
	return out
}

func strPtr(s string) *string { return &s }
