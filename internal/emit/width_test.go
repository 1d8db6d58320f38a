package emit

import "testing"

func TestFitsSignedByte(t *testing.T) {
	cases := []struct {
		v    int32
		want bool
	}{
		{-128, true}, {127, true}, {0, true}, {-129, false}, {128, false},
	}
	for _, c := range cases {
		if got := fitsSignedByte(c.v); got != c.want {
			t.Errorf("fitsSignedByte(%d) = %v, want %v", c.v, got, c.want)
		}
	}
}

func TestFitsUnsignedByte(t *testing.T) {
	cases := []struct {
		v    int
		want bool
	}{
		{0, true}, {255, true}, {256, false}, {-1, false},
	}
	for _, c := range cases {
		if got := fitsUnsignedByte(c.v); got != c.want {
			t.Errorf("fitsUnsignedByte(%d) = %v, want %v", c.v, got, c.want)
		}
	}
}
