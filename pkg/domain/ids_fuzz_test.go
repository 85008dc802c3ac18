package domain

import (
	"testing"
)

// FuzzParseChangeRequestID checks that parsing never panics and that every
// accepted value round-trips through String.
func FuzzParseChangeRequestID(f *testing.F) {
	f.Add("")
	f.Add("1")
	f.Add("0")
	f.Add("9223372036854775807")
	f.Add("'; DROP TABLE change_requests;--")
	f.Add(string([]byte{0x00, 0x01, 0x02}))

	f.Fuzz(func(t *testing.T, input string) {
		id, err := ParseChangeRequestID(input)
		if err != nil {
			return
		}
		if id.IsNil() {
			t.Error("accepted id must be positive")
		}
		roundTrip, err := ParseChangeRequestID(id.String())
		if err != nil {
			t.Errorf("valid id failed round-trip: %v", err)
		}
		if roundTrip != id {
			t.Error("round-trip changed id value")
		}
	})
}
