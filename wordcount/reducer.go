package wordcount

// Reducer folds every value of a key into one aggregate. Implementations must
// not keep state between calls.
type Reducer interface {
	Reduce(key string, values []int) Aggregate
}

// SumReducer totals the values of a key.
type SumReducer struct{}

func (SumReducer) Reduce(key string, values []int) Aggregate {
	if len(values) == 0 {
		violate("Reduce", "empty values for key %q", key)
	}
	total := 0
	for _, v := range values {
		total += v
	}
	return Aggregate{Key: key, Total: total}
}

// ReduceGroup applies r to g and checks that the aggregate belongs to g.
func ReduceGroup(r Reducer, g Group) Aggregate {
	agg := r.Reduce(g.Key, g.Values)
	if agg.Key != g.Key {
		violate("ReduceGroup", "reducer returned key %q for group %q", agg.Key, g.Key)
	}
	return agg
}
