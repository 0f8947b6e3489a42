package intervalset

import (
	"reflect"
	"testing"
)

func TestSetAddMerge(t *testing.T) {
	tests := []struct {
		name string
		adds []int64
		want []Range
	}{
		{"single", []int64{5}, []Range{{5, 5}}},
		{"consecutive ascending", []int64{1, 2, 3}, []Range{{1, 3}}},
		{"consecutive descending", []int64{3, 2, 1}, []Range{{1, 3}}},
		{"disjoint", []int64{1, 5, 10}, []Range{{1, 1}, {5, 5}, {10, 10}}},
		{"bridges gap", []int64{1, 3, 2}, []Range{{1, 3}}},
		{"merges two ranges", []int64{1, 2, 4, 5, 3}, []Range{{1, 5}}},
		{"duplicate add is no-op", []int64{1, 1, 1}, []Range{{1, 1}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New()
			for _, id := range tt.adds {
				s.Add(id)
			}
			if got := s.Ranges(); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Ranges() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSetContains(t *testing.T) {
	s := New()
	s.AddRange(1, 5)
	s.AddRange(10, 12)

	for _, id := range []int64{1, 3, 5, 10, 12} {
		if !s.Contains(id) {
			t.Errorf("Contains(%d) = false, want true", id)
		}
	}
	for _, id := range []int64{0, 6, 9, 13} {
		if s.Contains(id) {
			t.Errorf("Contains(%d) = true, want false", id)
		}
	}
}

func TestSetMin(t *testing.T) {
	s := New()
	if _, ok := s.Min(); ok {
		t.Fatal("Min() on empty set should return ok=false")
	}

	s.Add(7)
	s.Add(3)
	s.Add(5)
	min, ok := s.Min()
	if !ok || min != 3 {
		t.Errorf("Min() = %d, %v, want 3, true", min, ok)
	}
}

func TestSetRemove(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(s *Set)
		remove int64
		want   []Range
	}{
		{
			name:   "remove only member",
			setup:  func(s *Set) { s.Add(5) },
			remove: 5,
			want:   nil,
		},
		{
			name:   "remove left edge",
			setup:  func(s *Set) { s.AddRange(1, 5) },
			remove: 1,
			want:   []Range{{2, 5}},
		},
		{
			name:   "remove right edge",
			setup:  func(s *Set) { s.AddRange(1, 5) },
			remove: 5,
			want:   []Range{{1, 4}},
		},
		{
			name:   "remove middle splits range",
			setup:  func(s *Set) { s.AddRange(1, 5) },
			remove: 3,
			want:   []Range{{1, 2}, {4, 5}},
		},
		{
			name:   "remove missing id is no-op",
			setup:  func(s *Set) { s.AddRange(1, 5) },
			remove: 10,
			want:   []Range{{1, 5}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New()
			tt.setup(s)
			s.Remove(tt.remove)
			if got := s.Ranges(); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Ranges() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSetLen(t *testing.T) {
	s := New()
	s.AddRange(1, 5)
	s.AddRange(10, 10)
	if got := s.Len(); got != 6 {
		t.Errorf("Len() = %d, want 6", got)
	}
}

func TestSetClone(t *testing.T) {
	s := New()
	s.AddRange(1, 3)

	clone := s.Clone()
	clone.Add(4)

	if reflect.DeepEqual(s.Ranges(), clone.Ranges()) {
		t.Errorf("mutating clone affected original: %v", s.Ranges())
	}
}
