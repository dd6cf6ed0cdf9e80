package volume

import (
	"math"
	"sort"
)

// Mask is an integer-labeled array. Label 0 is background.
type Mask struct {
	Shape  [3]int
	Labels []int32
}

// NewMask allocates an all-background mask.
func NewMask(shape [3]int) Mask {
	return Mask{Shape: shape, Labels: make([]int32, shape[0]*shape[1]*shape[2])}
}

// MaskFromArray rounds every value to the nearest integer label.
func MaskFromArray(a Array) Mask {
	m := Mask{Shape: a.Shape, Labels: make([]int32, len(a.Data))}
	for i, v := range a.Data {
		m.Labels[i] = int32(math.Round(v))
	}
	return m
}

// Array converts the labels back to float values.
func (m Mask) Array() Array {
	a := Array{Shape: m.Shape, Data: make([]float64, len(m.Labels))}
	for i, l := range m.Labels {
		a.Data[i] = float64(l)
	}
	return a
}

// At returns the label at (i, j, k).
func (m Mask) At(i, j, k int) int32 {
	return m.Labels[(i*m.Shape[1]+j)*m.Shape[2]+k]
}

// Clone returns a deep copy.
func (m Mask) Clone() Mask {
	out := Mask{Shape: m.Shape, Labels: make([]int32, len(m.Labels))}
	copy(out.Labels, m.Labels)
	return out
}

// Equal reports whether both masks have the same shape and labels.
func (m Mask) Equal(o Mask) bool {
	if m.Shape != o.Shape || len(m.Labels) != len(o.Labels) {
		return false
	}
	for i := range m.Labels {
		if m.Labels[i] != o.Labels[i] {
			return false
		}
	}
	return true
}

// Present returns the distinct non-zero labels in ascending order.
func (m Mask) Present() []int32 {
	seen := make(map[int32]bool)
	for _, l := range m.Labels {
		if l != 0 {
			seen[l] = true
		}
	}
	out := make([]int32, 0, len(seen))
	for l := range seen {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
