package qdrant

import (
	"fmt"
	"sort"
	"strings"
)

// Filters use a small Mongo-like DSL:
//
//	{"kb_id": {"$in": [...]}, "document_id": "x", "$not": {...}}
//
// and compile to Qdrant's must/should/must_not form.
const (
	filterOpAnd = "$and"
	filterOpOr  = "$or"
	filterOpNot = "$not"
	filterOpIn  = "$in"
	filterOpEq  = "$eq"
	filterOpNe  = "$ne"
)

type compiledFilter struct {
	Must    []any
	Should  []any
	MustNot []any
}

func (f compiledFilter) asMap() map[string]any {
	out := map[string]any{}
	if len(f.Must) > 0 {
		out["must"] = f.Must
	}
	if len(f.Should) > 0 {
		out["should"] = f.Should
	}
	if len(f.MustNot) > 0 {
		out["must_not"] = f.MustNot
	}
	return out
}

func (f *compiledFilter) merge(src compiledFilter) {
	f.Must = append(f.Must, src.Must...)
	f.Should = append(f.Should, src.Should...)
	f.MustNot = append(f.MustNot, src.MustNot...)
}

func compileFilter(filter map[string]any) (compiledFilter, error) {
	out := compiledFilter{}
	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		k := strings.TrimSpace(key)
		value := filter[key]
		switch {
		case k == "":
			continue
		case k == filterOpAnd || k == filterOpOr:
			items, ok := value.([]map[string]any)
			if !ok {
				return compiledFilter{}, opErr("filter_compile", OperationErrorValidation, fmt.Sprintf("operator %s expects a list of objects", k), nil)
			}
			for _, item := range items {
				sub, err := compileFilter(item)
				if err != nil {
					return compiledFilter{}, err
				}
				if k == filterOpAnd {
					out.Must = append(out.Must, sub.asMap())
				} else {
					out.Should = append(out.Should, sub.asMap())
				}
			}
		case k == filterOpNot:
			item, ok := value.(map[string]any)
			if !ok {
				return compiledFilter{}, opErr("filter_compile", OperationErrorValidation, "operator $not expects an object", nil)
			}
			sub, err := compileFilter(item)
			if err != nil {
				return compiledFilter{}, err
			}
			out.MustNot = append(out.MustNot, sub.asMap())
		case strings.HasPrefix(k, "$"):
			return compiledFilter{}, opErr("filter_compile", OperationErrorUnsupportedFilter, fmt.Sprintf("unsupported top-level operator %q", k), nil)
		default:
			part, err := compileField(k, value)
			if err != nil {
				return compiledFilter{}, err
			}
			out.merge(part)
		}
	}
	return out, nil
}

func compileField(field string, value any) (compiledFilter, error) {
	out := compiledFilter{}
	ops, isOps := value.(map[string]any)
	if !isOps {
		out.Must = append(out.Must, matchValue(field, value))
		return out, nil
	}
	for op, v := range ops {
		switch op {
		case filterOpEq:
			out.Must = append(out.Must, matchValue(field, v))
		case filterOpNe:
			out.MustNot = append(out.MustNot, matchValue(field, v))
		case filterOpIn:
			values, ok := v.([]string)
			if !ok || len(values) == 0 {
				return compiledFilter{}, opErr("filter_compile", OperationErrorValidation, fmt.Sprintf("operator $in for field %q expects a non-empty string list", field), nil)
			}
			out.Must = append(out.Must, map[string]any{"key": field, "match": map[string]any{"any": values}})
		default:
			return compiledFilter{}, opErr("filter_compile", OperationErrorUnsupportedFilter, fmt.Sprintf("unsupported operator %q for field %q", op, field), nil)
		}
	}
	return out, nil
}

func matchValue(key string, value any) map[string]any {
	return map[string]any{"key": key, "match": map[string]any{"value": value}}
}
