package tth

import "testing"

func TestLeafCount(t *testing.T) {
	tests := []struct {
		size uint64
		want int64
	}{
		{size: 0, want: 1},
		{size: 1, want: 1},
		{size: LeafSize, want: 1},
		{size: LeafSize + 1, want: 2},
		{size: LeafSize * 10, want: 10},
	}

	for _, tt := range tests {
		if got := LeafCount(tt.size); got != tt.want {
			t.Errorf("LeafCount(%d) = %d, want %d", tt.size, got, tt.want)
		}
	}
}

func TestVerifyTreeShape(t *testing.T) {
	tests := []struct {
		name    string
		size    uint64
		blobLen int
		wantErr bool
	}{
		{name: "empty blob rejected", size: 1024, blobLen: 0, wantErr: true},
		{name: "not a multiple of HashLen", size: 1024, blobLen: 25, wantErr: true},
		{name: "too few leaves", size: LeafSize * 4, blobLen: HashLen * 2, wantErr: true},
		{name: "exact leaves ok", size: LeafSize * 4, blobLen: HashLen * 4, wantErr: false},
		{name: "single leaf for small file", size: 10, blobLen: HashLen, wantErr: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blob := make([]byte, tt.blobLen)
			err := VerifyTreeShape(tt.size, blob)
			if (err != nil) != tt.wantErr {
				t.Errorf("VerifyTreeShape() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDigestString(t *testing.T) {
	var d Digest
	s := d.String()
	if len(s) != EncodedLen {
		t.Errorf("Digest.String() length = %d, want %d", len(s), EncodedLen)
	}

	parsed, err := ParseDigest(s)
	if err != nil {
		t.Fatalf("ParseDigest() error: %v", err)
	}
	if parsed != d {
		t.Errorf("ParseDigest(d.String()) = %v, want %v", parsed, d)
	}
}
