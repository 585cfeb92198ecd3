package mailstore

// FieldMask is a bitset of the message fields a server can return in a
// single bulk fetch round trip.
type FieldMask uint32

const (
	FetchFlags FieldMask = 1 << iota
	FetchSize
	FetchUID
	FetchEnvelope
	FetchFullHeader
	FetchStructure
	FetchContentInfo
)

// HeaderFields is the usual request for a header-sync pass.
const HeaderFields = FetchFlags | FetchSize | FetchUID | FetchEnvelope

func (m FieldMask) Has(f FieldMask) bool {
	return m&f == f
}

func (m FieldMask) String() string {
	names := []struct {
		bit  FieldMask
		name string
	}{
		{FetchFlags, "flags"},
		{FetchSize, "size"},
		{FetchUID, "uid"},
		{FetchEnvelope, "envelope"},
		{FetchFullHeader, "full-header"},
		{FetchStructure, "structure"},
		{FetchContentInfo, "content-info"},
	}
	out := ""
	for _, n := range names {
		if !m.Has(n.bit) {
			continue
		}
		if out != "" {
			out += "|"
		}
		out += n.name
	}
	if out == "" {
		return "none"
	}
	return out
}

// Negotiate intersects the fields the caller wants with what the folder
// advertises. It never fails; an empty result means bulk header fetch is
// unavailable and callers must degrade.
func Negotiate(f Folder, desired FieldMask) FieldMask {
	return f.Capabilities() & desired
}
