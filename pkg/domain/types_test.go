package domain

import "testing"

func TestNewPagination(t *testing.T) {
	tests := []struct {
		name              string
		page, limit       int
		total             int64
		wantPage, wantLim int
		wantPages         int
	}{
		{name: "defaults", page: 0, limit: 0, total: 25, wantPage: 1, wantLim: 10, wantPages: 3},
		{name: "exact fit", page: 2, limit: 5, total: 10, wantPage: 2, wantLim: 5, wantPages: 2},
		{name: "limit clamped", page: 1, limit: 1000, total: 101, wantPage: 1, wantLim: 100, wantPages: 2},
		{name: "empty", page: 3, limit: 10, total: 0, wantPage: 3, wantLim: 10, wantPages: 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := NewPagination(tc.page, tc.limit, tc.total)
			if got.Page != tc.wantPage || got.Limit != tc.wantLim || got.Pages != tc.wantPages || got.Total != tc.total {
				t.Fatalf("pagination = %+v, want page=%d limit=%d pages=%d", got, tc.wantPage, tc.wantLim, tc.wantPages)
			}
		})
	}
}

func TestOffset(t *testing.T) {
	if got := Offset(3, 20); got != 40 {
		t.Fatalf("offset = %d, want 40", got)
	}
	if got := Offset(-1, 0); got != 0 {
		t.Fatalf("offset = %d, want 0", got)
	}
}

func TestBookReadableBy(t *testing.T) {
	private := Book{UploaderID: "u-1"}
	if !private.ReadableBy("u-1") {
		t.Fatalf("uploader should read own private book")
	}
	if private.ReadableBy("u-2") || private.ReadableBy("") {
		t.Fatalf("private book must not be readable by others")
	}
	public := Book{UploaderID: "u-1", IsPublic: true}
	if !public.ReadableBy("") {
		t.Fatalf("public book should be readable anonymously")
	}
}

func TestParseStorageProvider(t *testing.T) {
	for raw, want := range map[string]StorageProvider{
		"local":      ProviderLocal,
		"s3":         ProviderMinio,
		"cloudinary": ProviderCloudinary,
		"drive":      ProviderDrive,
	} {
		got, ok := ParseStorageProvider(raw)
		if !ok || got != want {
			t.Fatalf("ParseStorageProvider(%q) = %q, %v", raw, got, ok)
		}
	}
	if _, ok := ParseStorageProvider("ftp"); ok {
		t.Fatalf("unexpected provider for ftp")
	}
}
