package phone

import "testing"

func TestNormalizeE164(t *testing.T) {
	cases := []struct {
		name   string
		input  string
		region string
		want   string
	}{
		{name: "norwegian mobile", input: "412 34 567", region: "NO", want: "+4741234567"},
		{name: "already prefixed", input: "+47 412 34 567", region: "SE", want: "+4741234567"},
		{name: "empty region falls back", input: "41234567", region: "", want: "+4741234567"},
		{name: "garbage kept", input: "  call me  ", region: "NO", want: "call me"},
		{name: "empty", input: "   ", region: "NO", want: ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := NormalizeE164(tc.input, tc.region); got != tc.want {
				t.Fatalf("NormalizeE164(%q, %q) = %q, want %q", tc.input, tc.region, got, tc.want)
			}
		})
	}
}
