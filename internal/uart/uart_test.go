package uart

import "testing"

func TestInitAndWriteByteRoundTrip(t *testing.T) {
	u := PL011{Base: 0x0900_0000}
	u.Init()
	u.WriteByte('h')
	u.WriteByte('i')

	got := WrittenBytesForTest()
	if len(got) < 2 || string(got[len(got)-2:]) != "hi" {
		t.Fatalf("WrittenBytesForTest = %q, want suffix %q", got, "hi")
	}
}
