package store

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// fakeDDB is a minimal in-memory DynamoDB double supporting exactly the
// expression shapes this package's UpdateItem/PutItem/GetItem calls
// produce: SET with if_not_exists(), ADD, attribute_not_exists()
// conditions, simple equality/less-than comparisons, and AND/OR.
type fakeDDB struct {
	mu    sync.Mutex
	items map[string]map[string]types.AttributeValue // tableName#pk#sk -> item
}

func newFakeDDB() *fakeDDB {
	return &fakeDDB{items: make(map[string]map[string]types.AttributeValue)}
}

func keyFor(table string, key map[string]types.AttributeValue) string {
	var parts []string
	for _, k := range []string{"run_id", "tile_id"} {
		if v, ok := key[k].(*types.AttributeValueMemberS); ok {
			parts = append(parts, k+"="+v.Value)
		}
	}
	return table + "#" + strings.Join(parts, "#")
}

func (f *fakeDDB) PutItem(ctx context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	k := keyFor(*in.TableName, in.Item)
	existing, exists := f.items[k]

	if in.ConditionExpression != nil {
		if !f.evalCondition(*in.ConditionExpression, existing, exists, nil) {
			return nil, &types.ConditionalCheckFailedException{Message: strPtr("condition failed")}
		}
	}

	f.items[k] = copyItem(in.Item)
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDDB) GetItem(ctx context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	k := keyFor(*in.TableName, in.Key)
	item, ok := f.items[k]
	if !ok {
		return &dynamodb.GetItemOutput{}, nil
	}
	return &dynamodb.GetItemOutput{Item: copyItem(item)}, nil
}

func (f *fakeDDB) UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	k := keyFor(*in.TableName, in.Key)
	existing, exists := f.items[k]

	if in.ConditionExpression != nil {
		if !f.evalCondition(*in.ConditionExpression, existing, exists, in.ExpressionAttributeValues) {
			return nil, &types.ConditionalCheckFailedException{Message: strPtr("condition failed")}
		}
	}

	item := map[string]types.AttributeValue{}
	if exists {
		item = copyItem(existing)
	}
	for k, v := range in.Key {
		item[k] = v
	}

	applyUpdateExpression(*in.UpdateExpression, item, in.ExpressionAttributeNames, in.ExpressionAttributeValues)
	f.items[k] = item

	out := &dynamodb.UpdateItemOutput{}
	if in.ReturnValues == types.ReturnValueAllNew {
		out.Attributes = copyItem(item)
	}
	return out, nil
}

// evalCondition supports: attribute_not_exists(name), #name = :val,
// name < :val, and arbitrarily nested A OR B / A AND B groups — exactly
// the expression shapes this package's Claim/CreateRun conditions use.
func (f *fakeDDB) evalCondition(expr string, item map[string]types.AttributeValue, exists bool, values map[string]types.AttributeValue) bool {
	return f.evalExpr(expr, item, exists, values)
}

func (f *fakeDDB) evalExpr(expr string, item map[string]types.AttributeValue, exists bool, values map[string]types.AttributeValue) bool {
	expr = stripOuterParens(strings.TrimSpace(expr))

	if orParts := splitTopLevel(expr, " OR "); len(orParts) > 1 {
		for _, p := range orParts {
			if f.evalExpr(p, item, exists, values) {
				return true
			}
		}
		return false
	}

	if andParts := splitTopLevel(expr, " AND "); len(andParts) > 1 {
		for _, p := range andParts {
			if !f.evalExpr(p, item, exists, values) {
				return false
			}
		}
		return true
	}

	return f.evalClause(expr, item, exists, values)
}

// stripOuterParens removes one matching pair of parens wrapping the
// whole expression, if present.
func stripOuterParens(s string) string {
	if !strings.HasPrefix(s, "(") || !strings.HasSuffix(s, ")") {
		return s
	}
	depth := 0
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 && i != len(s)-1 {
				return s // the opening paren closes before the end; not a wrapping pair
			}
		}
	}
	return strings.TrimSpace(s[1 : len(s)-1])
}

// splitTopLevel splits s on sep only where parenthesis depth is zero.
func splitTopLevel(s, sep string) []string {
	var out []string
	depth := 0
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
		default:
			if depth == 0 && i+len(sep) <= len(s) && s[i:i+len(sep)] == sep {
				out = append(out, s[start:i])
				start = i + len(sep)
				i += len(sep) - 1
			}
		}
	}
	out = append(out, s[start:])
	return out
}

func (f *fakeDDB) evalClause(clause string, item map[string]types.AttributeValue, exists bool, values map[string]types.AttributeValue) bool {
	clause = strings.TrimSpace(clause)
	if strings.HasPrefix(clause, "attribute_not_exists(") {
		name := strings.TrimSuffix(strings.TrimPrefix(clause, "attribute_not_exists("), ")")
		if name == "run_id" || name == "tile_id" {
			return !exists
		}
		if !exists {
			return true
		}
		_, ok := item[name]
		return !ok
	}
	if strings.Contains(clause, " = ") {
		parts := strings.SplitN(clause, " = ", 2)
		return f.compareEq(strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]), item, exists, values)
	}
	if strings.Contains(clause, " < ") {
		parts := strings.SplitN(clause, " < ", 2)
		return f.compareLt(strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]), item, exists, values)
	}
	return false
}

func (f *fakeDDB) compareEq(nameRef, valRef string, item map[string]types.AttributeValue, exists bool, values map[string]types.AttributeValue) bool {
	nameRef = strings.TrimPrefix(nameRef, "#")
	nameRef = resolveName(nameRef)
	if !exists {
		return false
	}
	av, ok := item[nameRef]
	if !ok {
		return false
	}
	want, ok := values[valRef]
	if !ok {
		return false
	}
	return attrEqual(av, want)
}

func (f *fakeDDB) compareLt(nameRef, valRef string, item map[string]types.AttributeValue, exists bool, values map[string]types.AttributeValue) bool {
	if !exists {
		return false
	}
	av, ok := item[nameRef]
	if !ok {
		return false
	}
	n, ok := av.(*types.AttributeValueMemberN)
	if !ok {
		return false
	}
	want, ok := values[valRef].(*types.AttributeValueMemberN)
	if !ok {
		return false
	}
	a, _ := strconv.ParseFloat(n.Value, 64)
	b, _ := strconv.ParseFloat(want.Value, 64)
	return a < b
}

func resolveName(n string) string { return n }

func attrEqual(a, b types.AttributeValue) bool {
	as, aok := a.(*types.AttributeValueMemberS)
	bs, bok := b.(*types.AttributeValueMemberS)
	if aok && bok {
		return as.Value == bs.Value
	}
	an, aok := a.(*types.AttributeValueMemberN)
	bn, bok := b.(*types.AttributeValueMemberN)
	if aok && bok {
		return an.Value == bn.Value
	}
	return false
}

// applyUpdateExpression supports SET (with plain assignment and
// if_not_exists(attr, :val) + :val) and ADD clauses.
func applyUpdateExpression(expr string, item map[string]types.AttributeValue, names map[string]string, values map[string]types.AttributeValue) {
	setIdx := strings.Index(expr, "SET ")
	addIdx := strings.Index(expr, "ADD ")

	if setIdx != -1 {
		end := len(expr)
		if addIdx > setIdx {
			end = addIdx
		}
		setClause := expr[setIdx+4 : end]
		for _, assignment := range splitTopLevelComma(setClause) {
			parts := strings.SplitN(assignment, " = ", 2)
			if len(parts) != 2 {
				continue
			}
			attrName := resolveAttrName(strings.TrimSpace(parts[0]), names)
			valExpr := strings.TrimSpace(parts[1])

			if strings.HasPrefix(valExpr, "if_not_exists(") {
				inner := strings.TrimSuffix(strings.TrimPrefix(valExpr, "if_not_exists("), ")")
				args := strings.SplitN(inner, ", ", 2)
				if _, exists := item[attrName]; !exists && len(args) == 2 {
					if v, ok := values[strings.TrimSpace(args[1])]; ok {
						item[attrName] = v
					}
				}
				continue
			}
			if v, ok := values[valExpr]; ok {
				item[attrName] = v
			}
		}
	}

	if addIdx != -1 {
		addClause := expr[addIdx+4:]
		for _, assignment := range splitTopLevelComma(addClause) {
			parts := strings.Fields(strings.TrimSpace(assignment))
			if len(parts) != 2 {
				continue
			}
			attrName := resolveAttrName(parts[0], names)
			delta, ok := values[parts[1]].(*types.AttributeValueMemberN)
			if !ok {
				continue
			}
			current := int64(0)
			if existingN, ok := item[attrName].(*types.AttributeValueMemberN); ok {
				current, _ = strconv.ParseInt(existingN.Value, 10, 64)
			}
			d, _ := strconv.ParseInt(delta.Value, 10, 64)
			item[attrName] = &types.AttributeValueMemberN{Value: strconv.FormatInt(current+d, 10)}
		}
	}
}

func resolveAttrName(ref string, names map[string]string) string {
	if strings.HasPrefix(ref, "#") {
		if resolved, ok := names[ref]; ok {
			return resolved
		}
	}
	return ref
}

func splitTopLevelComma(s string) []string {
	var out []string
	depth := 0
	start := 0
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	out = append(out, strings.TrimSpace(s[start:]))
	return out
}

func copyItem(item map[string]types.AttributeValue) map[string]types.AttributeValue {
	out := make(map[string]types.AttributeValue, len(item))
	for k, v := range item {
		out[k] = v
	}
	return out
}

func strPtr(s string) *string { return &s }
