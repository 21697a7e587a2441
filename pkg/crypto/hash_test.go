package crypto

import "testing"

func TestHashHex(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		want  string
	}{
		{
			name:  "empty input",
			input: []byte{},
			want:  "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		},
		{
			name:  "abc",
			input: []byte("abc"),
			want:  "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HashHex(tt.input); got != tt.want {
				t.Errorf("HashHex(%q) = %s, want %s", tt.input, got, tt.want)
			}
			h := Hash(tt.input)
			if len(h) != HashSize {
				t.Errorf("Hash() length = %d, want %d", len(h), HashSize)
			}
		})
	}
}
