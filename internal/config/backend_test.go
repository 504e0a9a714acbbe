package config

import "testing"

func TestNormalizeBackend(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"", BackendAuto, false},
		{"auto", BackendAuto, false},
		{"AUTO", BackendAuto, false},
		{"cpu", BackendCPU, false},
		{" gpu-compute ", BackendGPUCompute, false},
		{"gpu", BackendGPUCompute, false},
		{"compute", BackendGPUCompute, false},
		{"gpu-pixel", BackendGPUPixel, false},
		{"pixel", BackendGPUPixel, false},
		{"pixel-shader", BackendGPUPixel, false},
		{"vulkan", "", true},
	}

	for _, tc := range cases {
		got, err := NormalizeBackend(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("NormalizeBackend(%q) = %q; want error", tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("NormalizeBackend(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("NormalizeBackend(%q) = %q; want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeChannelOrder(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"", OrderNCHW, false},
		{"nchw", OrderNCHW, false},
		{"NHWC", OrderNHWC, false},
		{"channels-first", OrderNCHW, false},
		{"channel-last", OrderNHWC, false},
		{"chw", "", true},
	}

	for _, tc := range cases {
		got, err := NormalizeChannelOrder(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("NormalizeChannelOrder(%q) = %q; want error", tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("NormalizeChannelOrder(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("NormalizeChannelOrder(%q) = %q; want %q", tc.in, got, tc.want)
		}
	}
}
