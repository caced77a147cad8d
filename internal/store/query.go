package store

import (
	"github.com/trektide/apiserver/internal/query"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// mongoOperators maps the API's bracket operators to their Mongo forms.
var mongoOperators = map[string]string{
	"gte": "$gte",
	"gt":  "$gt",
	"lte": "$lte",
	"lt":  "$lt",
}

// buildFilter translates parsed query filters into a Mongo filter
// document. base carries fixed constraints (e.g. secret exclusion) that
// client input can never override.
func buildFilter(base bson.M, f map[string]any) bson.M {
	filter := bson.M{}
	for field, value := range f {
		if ops, ok := value.(map[string]any); ok {
			cond := bson.M{}
			for op, operand := range ops {
				if mop, known := mongoOperators[op]; known {
					cond[mop] = operand
				}
			}
			filter[field] = cond
			continue
		}
		filter[field] = value
	}
	for field, value := range base {
		filter[field] = value
	}
	return filter
}

// buildFindOptions translates sort, projection, and pagination.
func buildFindOptions(opts query.Options) *options.FindOptionsBuilder {
	sort := bson.D{}
	for _, s := range opts.Sort {
		order := 1
		if s.Desc {
			order = -1
		}
		sort = append(sort, bson.E{Key: s.Field, Value: order})
	}

	find := options.Find().
		SetSort(sort).
		SetSkip(int64(opts.Skip())).
		SetLimit(int64(opts.Limit))

	if len(opts.Fields) > 0 {
		projection := bson.D{}
		for _, field := range opts.Fields {
			projection = append(projection, bson.E{Key: field, Value: 1})
		}
		find = find.SetProjection(projection)
	}
	return find
}
