package domain

import (
	"testing"
)

// FuzzParseApplicationID checks the trust-boundary parser never panics and
// that accepted values round-trip through String.
func FuzzParseApplicationID(f *testing.F) {
	f.Add("")
	f.Add("550e8400-e29b-41d4-a716-446655440000")
	f.Add("00000000-0000-0000-0000-000000000000")
	f.Add("not-a-uuid")
	f.Add("'; DROP TABLE applications;--")
	f.Add(string([]byte{0x00, 0x01, 0x02}))
	f.Add("550e8400-e29b-41d4-a716-446655440000\x00suffix")

	f.Fuzz(func(t *testing.T, input string) {
		appID, err := ParseApplicationID(input)
		if err != nil {
			return
		}
		if appID.IsNil() {
			t.Error("parser accepted the nil UUID")
		}
		roundTrip, err := ParseApplicationID(appID.String())
		if err != nil {
			t.Errorf("accepted id failed round-trip: %v", err)
		}
		if roundTrip != appID {
			t.Error("round-trip changed the id value")
		}
	})
}
