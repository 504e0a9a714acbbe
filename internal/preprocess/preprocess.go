// Package preprocess converts 2D pixel buffers into the 3-channel input
// tensors the classifier expects, in either channel order.
package preprocess

import (
	"fmt"
	"image"
	"io"
	"os"

	"github.com/disintegration/imaging"

	"github.com/example/go-image-classify/internal/config"
	"github.com/example/go-image-classify/internal/tensor"
)

// ImageNet normalization constants, the defaults for classifier bundles
// trained on ImageNet-style data.
var (
	DefaultMean = [3]float32{0.485, 0.456, 0.406}
	DefaultStd  = [3]float32{0.229, 0.224, 0.225}
)

// Options controls the image-to-tensor conversion.
type Options struct {
	// Size is the square edge length the image is scaled and center-cropped
	// to. Required.
	Size int
	// ChannelOrder selects the tensor layout: [1,3,H,W] for nchw,
	// [1,H,W,3] for nhwc.
	ChannelOrder string
	// Mean and Std are per-channel normalization constants. Zero values
	// fall back to the ImageNet defaults.
	Mean [3]float32
	Std  [3]float32
	// Raw disables normalization, leaving values in [0,1].
	Raw bool
}

func (o *Options) normalize() error {
	if o.Size <= 0 {
		return fmt.Errorf("preprocess: size %d must be positive", o.Size)
	}

	order, err := config.NormalizeChannelOrder(o.ChannelOrder)
	if err != nil {
		return fmt.Errorf("preprocess: %w", err)
	}

	o.ChannelOrder = order

	if !o.Raw {
		if o.Mean == [3]float32{} {
			o.Mean = DefaultMean
		}

		if o.Std == [3]float32{} {
			o.Std = DefaultStd
		}
	}

	return nil
}

// FromFile decodes the image at path and converts it.
func FromFile(path string, opts Options) (*tensor.Tensor, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("preprocess: open %s: %w", path, err)
	}

	defer func() { _ = fh.Close() }()

	return FromReader(fh, opts)
}

// FromReader decodes a PNG or JPEG stream and converts it.
func FromReader(r io.Reader, opts Options) (*tensor.Tensor, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("preprocess: decode image: %w", err)
	}

	return FromImage(img, opts)
}

// FromImage scales and center-crops the image to Size×Size, then writes the
// normalized channel values into a tensor in the requested layout.
func FromImage(img image.Image, opts Options) (*tensor.Tensor, error) {
	if err := opts.normalize(); err != nil {
		return nil, err
	}

	fitted := imaging.Fill(img, opts.Size, opts.Size, imaging.Center, imaging.Lanczos)

	h := opts.Size
	w := opts.Size
	data := make([]float32, 3*h*w)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			// NRGBA pixel access: imaging always returns *image.NRGBA.
			px := fitted.NRGBAAt(x, y)
			rgb := [3]float32{
				float32(px.R) / 255,
				float32(px.G) / 255,
				float32(px.B) / 255,
			}

			for c := 0; c < 3; c++ {
				v := rgb[c]
				if !opts.Raw {
					v = (v - opts.Mean[c]) / opts.Std[c]
				}

				if opts.ChannelOrder == config.OrderNCHW {
					data[c*h*w+y*w+x] = v
				} else {
					data[(y*w+x)*3+c] = v
				}
			}
		}
	}

	shape := []int64{1, 3, int64(h), int64(w)}
	if opts.ChannelOrder == config.OrderNHWC {
		shape = []int64{1, int64(h), int64(w), 3}
	}

	return tensor.New(data, shape)
}
