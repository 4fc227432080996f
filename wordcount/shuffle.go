package wordcount

import "sort"

// Shuffle collects the complete pair stream of a run and groups it by key.
// Groups seals the shuffle: it is the barrier between mapping and reducing.
type Shuffle struct {
	index  map[string]int
	groups []Group
	pairs  int
	sealed bool
}

func MakeShuffle() *Shuffle {
	return &Shuffle{index: make(map[string]int)}
}

func (s *Shuffle) Add(p Pair) {
	if s.sealed {
		violate("Shuffle.Add", "pair %q added after grouping", p.Key)
	}
	i, ok := s.index[p.Key]
	if !ok {
		i = len(s.groups)
		s.index[p.Key] = i
		s.groups = append(s.groups, Group{Key: p.Key})
	}
	s.groups[i].Values = append(s.groups[i].Values, p.Value)
	s.pairs++
}

func (s *Shuffle) AddAll(pairs []Pair) {
	for _, p := range pairs {
		s.Add(p)
	}
}

// Len is the number of pairs seen so far.
func (s *Shuffle) Len() int { return s.pairs }

// Groups returns one group per distinct key in ascending byte order. Values
// inside a group keep the order in which they were added. The slice is the
// shuffle's own state: callers must not modify it or the Values it holds.
func (s *Shuffle) Groups() []Group {
	if !s.sealed {
		s.sealed = true
		sort.Slice(s.groups, func(i, j int) bool {
			return s.groups[i].Key < s.groups[j].Key
		})
		s.index = nil
	}
	return s.groups
}

func GroupPairs(pairs []Pair) []Group {
	s := MakeShuffle()
	s.AddAll(pairs)
	return s.Groups()
}
