package devices

import (
	"testing"

	"github.com/nerrad567/tophat-core/internal/device"
)

func TestNewCatalog(t *testing.T) {
	catalog, err := NewCatalog()
	if err != nil {
		t.Fatalf("NewCatalog() error = %v", err)
	}

	total := 0
	for _, typ := range []string{TypePrinter, TypeSwitch, TypePixels, TypeNFC} {
		tags, err := Tags(typ)
		if err != nil {
			t.Fatalf("Tags(%s) error = %v", typ, err)
		}
		for tag := range tags {
			total++
			if _, ok := catalog.Kind(tag); !ok {
				t.Errorf("catalog missing %s", tag)
			}
		}
	}
	if got := len(catalog.Tags()); got != total {
		t.Errorf("catalog has %d tags, device types declare %d", got, total)
	}
}

func TestCommandKinds(t *testing.T) {
	catalog, err := NewCatalog()
	if err != nil {
		t.Fatalf("NewCatalog() error = %v", err)
	}

	sync := map[device.Tag]bool{"switch.state": true, "nfc.read_data": true}
	for _, tag := range catalog.Tags() {
		kind, _ := catalog.Kind(tag)
		want := device.KindAsync
		if sync[tag] {
			want = device.KindSync
		}
		if kind != want {
			t.Errorf("%s kind = %v, want %v", tag, kind, want)
		}
	}
}

func TestTags_Unknown(t *testing.T) {
	if _, err := Tags("toaster"); err == nil {
		t.Error("Tags(toaster) should fail")
	}
}
