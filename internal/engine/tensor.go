package engine

import (
	"fmt"
	"math"
)

// Tensor is the float32 payload exchanged with the engine. Shapes follow the
// active channel order: [1, 3, H, W] for nchw inputs, [1, H, W, 3] for nhwc.
type Tensor struct {
	shape []int64
	data  []float32
}

func NewTensor(data []float32, shape []int64) (*Tensor, error) {
	if err := validateShapeAgainstData(shape, len(data)); err != nil {
		return nil, err
	}

	return &Tensor{
		shape: append([]int64(nil), shape...),
		data:  append([]float32(nil), data...),
	}, nil
}

func NewZeroTensor(shape []int64) (*Tensor, error) {
	count, err := elementCount(shape)
	if err != nil {
		return nil, err
	}

	return NewTensor(make([]float32, count), shape)
}

func (t *Tensor) Shape() []int64 {
	return append([]int64(nil), t.shape...)
}

// Data returns a copy of the tensor values; the engine's buffers are never
// aliased by callers.
func (t *Tensor) Data() []float32 {
	return append([]float32(nil), t.data...)
}

func (t *Tensor) ElemCount() int {
	return len(t.data)
}

func validateShapeAgainstData(shape []int64, dataLen int) error {
	count, err := elementCount(shape)
	if err != nil {
		return err
	}
	if count != dataLen {
		return fmt.Errorf("shape %v expects %d elements, got %d", shape, count, dataLen)
	}
	return nil
}

func elementCount(shape []int64) (int, error) {
	if len(shape) == 0 {
		return 1, nil
	}
	count := int64(1)
	for i, dim := range shape {
		if dim < 1 {
			return 0, fmt.Errorf("shape[%d]=%d is not positive", i, dim)
		}
		if count > math.MaxInt64/dim {
			return 0, fmt.Errorf("shape %v overflows element count", shape)
		}
		count *= dim
	}
	if count > int64(math.MaxInt) {
		return 0, fmt.Errorf("shape %v exceeds platform int capacity", shape)
	}
	return int(count), nil
}
